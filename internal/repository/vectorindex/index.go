package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/DRSN-tech/image-search/pkg/logger"
	"github.com/google/renameio/v2"
	"github.com/jimlawless/whereami"
)

// snapshot неизменяем после публикации.
type snapshot struct {
	flat []float32
	ids  []int64
	pos  map[int64]int
}

func newSnapshot(flat []float32, ids []int64) *snapshot {
	pos := make(map[int64]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}

	return &snapshot{flat: flat, ids: ids, pos: pos}
}

func (s *snapshot) len() int {
	return len(s.ids)
}

func (s *snapshot) row(i int) domain.Vector {
	return s.flat[i*domain.Dim : (i+1)*domain.Dim]
}

// Index — плоский индекс скалярного произведения над единичными векторами,
// хранимый парой файлов product_vectors.index и product_ids.npy.
// Чтение идёт по атомарно опубликованному снапшоту, запись сериализуется мьютексом.
type Index struct {
	indexPath string
	idsPath   string
	logger    logger.Logger

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]

	violations atomic.Pointer[[]string]
}

func NewIndex(indexPath, idsPath string, logger logger.Logger) *Index {
	return &Index{
		indexPath: indexPath,
		idsPath:   idsPath,
		logger:    logger,
	}
}

// Load читает пару файлов. Отсутствие обоих файлов даёт пустой индекс.
// При нарушении инвариантов индекс остаётся неинициализированным.
func (x *Index) Load(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.load(ctx)
}

// Reload перечитывает файлы и атомарно подменяет снапшот.
func (x *Index) Reload(ctx context.Context) error {
	return x.Load(ctx)
}

func (x *Index) load(_ context.Context) error {
	indexExists, err := fileExists(x.indexPath)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	idsExists, err := fileExists(x.idsPath)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if !indexExists && !idsExists {
		x.logger.Infof("no index files at %s, starting with an empty index", filepath.Dir(x.indexPath))
		x.publish(newSnapshot(nil, nil), nil)
		return nil
	}

	if indexExists != idsExists {
		missing := x.idsPath
		if !indexExists {
			missing = x.indexPath
		}
		return x.refuse(fmt.Sprintf("file %s is missing", filepath.Base(missing)))
	}

	dim, flat, err := readIndexFile(x.indexPath)
	if err != nil {
		return x.refuse(fmt.Sprintf("cannot read index: %v", err))
	}

	ids, err := readIDsFile(x.idsPath)
	if err != nil {
		return x.refuse(fmt.Sprintf("cannot read ids: %v", err))
	}

	var violations []string
	if dim != domain.Dim {
		violations = append(violations, fmt.Sprintf("dimension is %d, expected %d", dim, domain.Dim))
	}
	ntotal := 0
	if dim > 0 {
		ntotal = len(flat) / dim
	}
	if len(ids) != ntotal {
		violations = append(violations, fmt.Sprintf("ids length %d != ntotal %d", len(ids), ntotal))
	}
	if dups := duplicates(ids); len(dups) > 0 {
		violations = append(violations, fmt.Sprintf("duplicate ids: %v", dups))
	}
	if len(violations) > 0 {
		return x.refuse(violations...)
	}

	x.publish(newSnapshot(flat, ids), nil)
	x.logger.Infof("loaded image index: %d vectors", len(ids))

	return nil
}

func (x *Index) refuse(violations ...string) error {
	x.publish(nil, violations)
	for _, v := range violations {
		x.logger.Warnf("image index invariant violated: %s", v)
	}
	x.logger.Warnf("image index refused to load, run rebuild-image-index")

	return e.Wrap(whereami.WhereAmI(), e.ErrIndexInvariant)
}

func (x *Index) publish(s *snapshot, violations []string) {
	x.violations.Store(&violations)
	x.snap.Store(s)
}

// Persist записывает текущий снапшот на диск.
func (x *Index) Persist(_ context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	s := x.snap.Load()
	if s == nil {
		return e.Wrap(whereami.WhereAmI(), e.ErrIndexNotInitialized)
	}

	return x.persist(s)
}

// persist подготавливает оба файла во временных файлах и затем переименовывает их.
// Обрыв между двумя переименованиями обнаруживается при следующей загрузке.
func (x *Index) persist(s *snapshot) error {
	if err := os.MkdirAll(filepath.Dir(x.indexPath), 0o755); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if err := os.MkdirAll(filepath.Dir(x.idsPath), 0o755); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	indexFile, err := renameio.NewPendingFile(x.indexPath, renameio.WithPermissions(0o644))
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	defer indexFile.Cleanup()

	idsFile, err := renameio.NewPendingFile(x.idsPath, renameio.WithPermissions(0o644))
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	defer idsFile.Cleanup()

	if err := writeFlatIP(indexFile, domain.Dim, s.flat); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if err := writeIDs(idsFile, s.ids); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	if err := indexFile.CloseAtomicallyReplace(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}
	if err := idsFile.CloseAtomicallyReplace(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// commit сохраняет снапшот на диск и публикует его читателям.
// Вызывается под x.mu.
func (x *Index) commit(s *snapshot) error {
	if err := x.persist(s); err != nil {
		return err
	}
	x.publish(s, nil)

	return nil
}

// AddBatch добавляет строки в конец индекса.
func (x *Index) AddBatch(_ context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := validateEntries(entries); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.snap.Load()
	if cur == nil {
		return e.Wrap(whereami.WhereAmI(), e.ErrIndexNotInitialized)
	}
	for _, en := range entries {
		if _, ok := cur.pos[en.ID]; ok {
			return fmt.Errorf("%w: %d", e.ErrDuplicateID, en.ID)
		}
	}

	flat := make([]float32, len(cur.flat), len(cur.flat)+len(entries)*domain.Dim)
	copy(flat, cur.flat)
	ids := make([]int64, len(cur.ids), len(cur.ids)+len(entries))
	copy(ids, cur.ids)
	for _, en := range entries {
		flat = append(flat, en.Vector...)
		ids = append(ids, en.ID)
	}

	if err := x.commit(newSnapshot(flat, ids)); err != nil {
		return err
	}
	x.logger.Infof("added %d vectors to image index, total %d", len(entries), len(ids))

	return nil
}

// Remove удаляет товар из индекса, пересобирая матрицу из оставшихся строк.
// Возвращает false, если товара в индексе не было.
func (x *Index) Remove(_ context.Context, id int64) (bool, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.snap.Load()
	if cur == nil {
		return false, e.Wrap(whereami.WhereAmI(), e.ErrIndexNotInitialized)
	}
	if _, ok := cur.pos[id]; !ok {
		x.logger.Warnf("product %d is not in the image index, nothing to remove", id)
		return false, nil
	}

	if err := x.commit(without(cur, id, 0)); err != nil {
		return false, err
	}
	x.logger.Infof("removed product %d from image index", id)

	return true, nil
}

// Update заменяет вектор товара либо добавляет его, если товара нет.
func (x *Index) Update(_ context.Context, entry domain.IndexEntry) error {
	if err := entry.Vector.Validate(); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cur := x.snap.Load()
	if cur == nil {
		return e.Wrap(whereami.WhereAmI(), e.ErrIndexNotInitialized)
	}

	next := without(cur, entry.ID, 1)
	next.flat = append(next.flat, entry.Vector...)
	next.ids = append(next.ids, entry.ID)
	next.pos[entry.ID] = len(next.ids) - 1

	return x.commit(next)
}

// Rebuild заменяет индекс целиком. Пустой набор отвергается, прежний индекс сохраняется.
func (x *Index) Rebuild(_ context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return e.Wrap(whereami.WhereAmI(), e.ErrEmptyRebuild)
	}
	if err := validateEntries(entries); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	flat := make([]float32, 0, len(entries)*domain.Dim)
	ids := make([]int64, 0, len(entries))
	for _, en := range entries {
		flat = append(flat, en.Vector...)
		ids = append(ids, en.ID)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.commit(newSnapshot(flat, ids)); err != nil {
		return err
	}
	x.logger.Infof("image index rebuilt with %d vectors", len(ids))

	return nil
}

// Reconstruct возвращает копию сохранённого вектора товара.
func (x *Index) Reconstruct(id int64) (domain.Vector, bool) {
	s := x.snap.Load()
	if s == nil {
		return nil, false
	}
	i, ok := s.pos[id]
	if !ok {
		return nil, false
	}

	out := make(domain.Vector, domain.Dim)
	copy(out, s.row(i))

	return out, true
}

// IDs возвращает копию списка идентификаторов в порядке строк индекса.
func (x *Index) IDs() []int64 {
	s := x.snap.Load()
	if s == nil {
		return nil
	}

	out := make([]int64, len(s.ids))
	copy(out, s.ids)

	return out
}

func (x *Index) Contains(id int64) bool {
	s := x.snap.Load()
	if s == nil {
		return false
	}
	_, ok := s.pos[id]

	return ok
}

func (x *Index) Len() int {
	s := x.snap.Load()
	if s == nil {
		return 0
	}

	return s.len()
}

func (x *Index) Initialized() bool {
	return x.snap.Load() != nil
}

func (x *Index) Health() domain.IndexHealth {
	h := domain.IndexHealth{Dim: domain.Dim}
	if v := x.violations.Load(); v != nil && len(*v) > 0 {
		h.Violations = append([]string(nil), (*v)...)
	}

	s := x.snap.Load()
	if s == nil {
		h.Dim = 0
		return h
	}

	h.Initialized = true
	h.NTotal = len(s.flat) / domain.Dim
	h.IDs = len(s.ids)

	return h
}

// without копирует снапшот без строки id, оставляя запас под extra строк.
func without(cur *snapshot, id int64, extra int) *snapshot {
	n := cur.len()
	flat := make([]float32, 0, (n+extra)*domain.Dim)
	ids := make([]int64, 0, n+extra)
	for i, cid := range cur.ids {
		if cid == id {
			continue
		}
		flat = append(flat, cur.row(i)...)
		ids = append(ids, cid)
	}

	return newSnapshot(flat, ids)
}

func validateEntries(entries []domain.IndexEntry) error {
	seen := make(map[int64]struct{}, len(entries))
	for _, en := range entries {
		if err := en.Vector.Validate(); err != nil {
			return fmt.Errorf("product %d: %w", en.ID, err)
		}
		if _, ok := seen[en.ID]; ok {
			return fmt.Errorf("%w: %d", e.ErrDuplicateID, en.ID)
		}
		seen[en.ID] = struct{}{}
	}

	return nil
}

func duplicates(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	var dups []int64
	for _, id := range ids {
		if seen[id] {
			dups = append(dups, id)
		}
		seen[id] = true
	}

	return dups
}

func readIndexFile(path string) (int, []float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer f.Close()

	return readFlatIP(f)
}

func readIDsFile(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readIDs(f)
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	return false, err
}
