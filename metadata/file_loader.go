package metadata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileLoader reads flow definitions from yaml files in a directory and saves the
// versions the store does not know yet.
type FileLoader struct {
	dir     string
	service *Service
	cron    *cron.Cron
}

func NewFileLoader(dir string, service *Service) *FileLoader {
	return &FileLoader{
		dir:     dir,
		service: service,
	}
}

// Load saves every new flow version found in the directory and returns how many
// were saved. A file that fails to parse or validate fails the load.
func (l *FileLoader) Load(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, err
	}
	saved := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		def, err := readDefinition(path)
		if err != nil {
			return saved, err
		}
		err = l.service.SaveFlow(ctx, *def)
		if isVersionExists(err) {
			logger.Debug("flow version already stored", zap.String("file", path), zap.String("flow", def.Name), zap.Int("version", def.Version))
			continue
		}
		if err != nil {
			return saved, fmt.Errorf("flow file %s: %w", path, err)
		}
		saved++
	}
	return saved, nil
}

// Start loads the directory on the cron schedule until Stop is called.
func (l *FileLoader) Start(schedule string) error {
	l.cron = cron.New()
	_, err := l.cron.AddFunc(schedule, func() {
		n, err := l.Load(context.Background())
		if err != nil {
			logger.Error("error in reloading flow files", zap.String("dir", l.dir), zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("flow files reloaded", zap.String("dir", l.dir), zap.Int("saved", n))
		}
	})
	if err != nil {
		return err
	}
	l.cron.Start()
	return nil
}

func (l *FileLoader) Stop() {
	if l.cron != nil {
		<-l.cron.Stop().Done()
	}
}

func readDefinition(path string) (*model.FlowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def model.FlowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("flow file %s: %w", path, err)
	}
	return &def, nil
}
