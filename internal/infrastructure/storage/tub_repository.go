package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"saliency-viz/internal/domain/entity"
)

const (
	// RecordPattern — маска файлов записей в каталоге тюба
	RecordPattern = "record*.json"
	// DefaultImageKey — ключ метаданных со ссылкой на кадр
	DefaultImageKey = "cam/image_array"
)

var recordIndex = regexp.MustCompile(`.+_(\d+)\.json$`)

// TubRepository читает записи тюба из каталога
type TubRepository struct {
	dir      string
	imageKey string
	logger   *zap.Logger
}

// NewTubRepository создаёт репозиторий поверх каталога тюба
func NewTubRepository(dir, imageKey string, logger *zap.Logger) *TubRepository {
	if imageKey == "" {
		imageKey = DefaultImageKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TubRepository{dir: dir, imageKey: imageKey, logger: logger}
}

// List возвращает записи по возрастанию числа из имени файла. Файлы, из имени
// которых не извлекается индекс, пропускаются с предупреждением.
func (r *TubRepository) List(ctx context.Context) ([]entity.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(r.dir)
	if err != nil {
		return nil, fmt.Errorf("open tub: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tub %s is not a directory", r.dir)
	}

	// маска применяется только к именам файлов: путь тюба может содержать [ или *
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read tub: %w", err)
	}

	records := make([]entity.Record, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ok, _ := filepath.Match(RecordPattern, e.Name()); !ok {
			continue
		}
		path := filepath.Join(r.dir, e.Name())
		m := recordIndex.FindStringSubmatch(e.Name())
		if m == nil {
			r.logger.Warn("skipping record without index", zap.String("record", path))
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			r.logger.Warn("skipping record with bad index", zap.String("record", path), zap.Error(err))
			continue
		}
		records = append(records, entity.Record{Index: idx, Path: path})
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Index != records[j].Index {
			return records[i].Index < records[j].Index
		}
		return records[i].Path < records[j].Path
	})
	return records, nil
}

// Resolve читает json записи и возвращает путь к изображению внутри тюба
func (r *TubRepository) Resolve(ctx context.Context, record entity.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := os.ReadFile(record.Path)
	if err != nil {
		return "", fmt.Errorf("read record %d: %w", record.Index, err)
	}

	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", fmt.Errorf("parse record %d: %w", record.Index, err)
	}

	raw, ok := meta[r.imageKey]
	if !ok {
		return "", fmt.Errorf("record %d has no %q key", record.Index, r.imageKey)
	}
	rel, ok := raw.(string)
	if !ok || rel == "" {
		return "", fmt.Errorf("record %d: %q is not a path", record.Index, r.imageKey)
	}

	return filepath.Join(r.dir, rel), nil
}
