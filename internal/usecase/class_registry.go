package usecase

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/fsx"
	"go.uber.org/zap"
)

// ClassRegistry holds the current class list and the file it persists to.
// Updates replace the list wholesale; lists are never merged.
type ClassRegistry struct {
	path    string
	classes entity.ClassList
	logger  *zap.Logger
}

func NewClassRegistry(path string, logger *zap.Logger) *ClassRegistry {
	return &ClassRegistry{path: path, logger: logger}
}

func (r *ClassRegistry) Path() string { return r.path }

// Classes returns a copy of the current list, nil when none is set.
func (r *ClassRegistry) Classes() entity.ClassList {
	if r.classes == nil {
		return nil
	}
	out := make(entity.ClassList, len(r.classes))
	copy(out, r.classes)
	return out
}

// Set validates names and replaces the current list. On error the previous
// list is kept.
func (r *ClassRegistry) Set(names []string) error {
	list, err := entity.NewClassList(names)
	if err != nil {
		return err
	}
	r.classes = list
	r.logger.Info("class list set", zap.Int("count", list.Len()), zap.Strings("classes", list))
	return nil
}

// Load reads path and makes it the current list. A missing file is a
// *entity.ClassFileNotFoundError, which callers treat as "no prior classes".
func (r *ClassRegistry) Load(path string) (entity.ClassList, error) {
	list, err := ReadClassFile(path)
	if err != nil {
		return nil, err
	}
	r.classes = list
	r.logger.Info("class list loaded", zap.String("path", path), zap.Int("count", list.Len()))
	return r.Classes(), nil
}

// Save writes the current list to the registry file, one name per line.
func (r *ClassRegistry) Save() (string, error) {
	if len(r.classes) == 0 {
		return "", &entity.EmptyClassListError{}
	}
	if err := fsx.WriteFileAtomic(r.path, []byte(r.classes.Text()+"\n")); err != nil {
		return "", entity.WrapStage(entity.StageClasses, fmt.Errorf("save classes: %w", err))
	}
	r.logger.Info("classes saved", zap.String("path", r.path))
	return r.path, nil
}

// Discover looks for a class list exported by the labeling tool inside
// labelsDir, then falls back to the registry file. It returns the list and
// the file it came from; the current list is not changed.
func (r *ClassRegistry) Discover(labelsDir string) (entity.ClassList, string, error) {
	candidates := []string{filepath.Join(labelsDir, ClassesFileName)}
	if r.path != "" && filepath.Clean(r.path) != filepath.Clean(candidates[0]) {
		candidates = append(candidates, r.path)
	}

	for _, path := range candidates {
		list, err := ReadClassFile(path)
		var notFound *entity.ClassFileNotFoundError
		if errors.As(err, &notFound) {
			continue
		}
		if err != nil {
			return nil, path, err
		}
		r.logger.Info("classes discovered", zap.String("path", path), zap.Int("count", list.Len()))
		return list, path, nil
	}
	return nil, "", &entity.ClassFileNotFoundError{Path: candidates[0]}
}

// ReadClassFile parses a names file: one class per line, blank lines
// ignored, entries trimmed.
func ReadClassFile(path string) (entity.ClassList, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &entity.ClassFileNotFoundError{Path: path}
	}
	if err != nil {
		return nil, entity.WrapStage(entity.StageClasses, fmt.Errorf("open class file: %w", err))
	}
	defer f.Close()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, entity.WrapStage(entity.StageClasses, fmt.Errorf("read class file: %w", err))
	}
	return entity.NewClassList(names)
}

// InferClassCount returns the highest class_id referenced by any label file
// in dir plus one, or 0 when no label references a class. Lines that do not
// start with an integer are ignored.
func InferClassCount(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, entity.WrapStage(entity.StageClasses, fmt.Errorf("read labels dir: %w", err))
	}

	maxID := -1
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") ||
			strings.ToLower(filepath.Ext(name)) != labelExtension || strings.EqualFold(name, ClassesFileName) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return 0, entity.WrapStage(entity.StageClasses, err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if id, err := strconv.Atoi(fields[0]); err == nil && id > maxID {
				maxID = id
			}
		}
	}
	return maxID + 1, nil
}
