package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmeshcher/picking-system/internal/csvx"
	"github.com/mmeshcher/picking-system/internal/model"
)

// ErrOrderFileNotFound возвращается при обращении к отсутствующему файлу заказа.
var ErrOrderFileNotFound = errors.New("order file not found")

// FileStore — файловое хранилище в разделяемом каталоге. Учётная система
// кладёт файлы заказов в orders/, хаб убирает обработанные в archive/ и
// складывает отгрузочные документы в documents/.
type FileStore struct {
	ordersDir    string
	archiveDir   string
	documentsDir string
}

// NewFileStore создаёт хранилище в указанном корневом каталоге.
func NewFileStore(root string) (*FileStore, error) {
	fs := &FileStore{
		ordersDir:    filepath.Join(root, "orders"),
		archiveDir:   filepath.Join(root, "archive"),
		documentsDir: filepath.Join(root, "documents"),
	}

	for _, dir := range []string{fs.ordersDir, fs.archiveDir, fs.documentsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	return fs, nil
}

// List возвращает файлы заказов, ожидающие комплектации.
func (fs *FileStore) List() ([]model.OrderFileInfo, error) {
	entries, err := os.ReadDir(fs.ordersDir)
	if err != nil {
		return nil, fmt.Errorf("read orders dir: %w", err)
	}

	var infos []model.OrderFileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}

		fi, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat order file: %w", err)
		}

		infos = append(infos, model.OrderFileInfo{
			FileName: e.Name(),
			Name:     strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
			Size:     fi.Size(),
			Modified: fi.ModTime(),
		})
	}

	return infos, nil
}

// Load читает файл заказа и возвращает заказ, готовый к комплектации.
func (fs *FileStore) Load(fileName string) (*model.Order, error) {
	// Имя приходит от клиента; не даём выйти за пределы каталога.
	fileName = filepath.Base(fileName)

	f, err := os.Open(filepath.Join(fs.ordersDir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrOrderFileNotFound
		}
		return nil, fmt.Errorf("open order file: %w", err)
	}
	defer f.Close()

	items, err := csvx.ParseOrder(f)
	if err != nil {
		return nil, fmt.Errorf("parse order file %s: %w", fileName, err)
	}

	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	order := &model.Order{
		ID:        name,
		Name:      name,
		FileName:  fileName,
		Items:     items,
		CreatedAt: time.Now(),
		Status:    model.OrderStatusInProgress,
	}
	order.Recalculate()

	return order, nil
}

// Archive перемещает обработанный файл заказа из orders/ в archive/.
func (fs *FileStore) Archive(fileName string) error {
	fileName = filepath.Base(fileName)

	src := filepath.Join(fs.ordersDir, fileName)
	dst := filepath.Join(fs.archiveDir, fileName)

	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return ErrOrderFileNotFound
		}
		return fmt.Errorf("move order file: %w", err)
	}

	return nil
}

// SaveDocument сохраняет отгрузочный документ в documents/.
func (fs *FileStore) SaveDocument(name string, data []byte) error {
	name = filepath.Base(name)

	if err := os.WriteFile(filepath.Join(fs.documentsDir, name), data, 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	return nil
}
