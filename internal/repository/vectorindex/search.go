package vectorindex

import (
	"container/heap"
	"context"
	"runtime"
	"sort"

	"github.com/DRSN-tech/image-search/internal/domain"
	"github.com/DRSN-tech/image-search/pkg/e"
	"github.com/jimlawless/whereami"
	"golang.org/x/sync/errgroup"
)

// С parallelRows строк скалярные произведения считаются параллельно.
const parallelRows = 4096

type candidate struct {
	slot  int
	score float32
}

// worstFirst — куча, на вершине которой худший кандидат:
// меньший счёт, при равенстве больший номер строки.
type worstFirst []candidate

func (h worstFirst) Len() int { return len(h) }
func (h worstFirst) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].slot > h[j].slot
}
func (h worstFirst) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *worstFirst) Push(x any)   { *h = append(*h, x.(candidate)) }
func (h *worstFirst) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Search возвращает до k товаров, нормированное сходство которых не ниже threshold.
// Сходство считается как (s+1)/2, где s — скалярное произведение.
// Неинициализированный или пустой индекс даёт пустой результат.
func (x *Index) Search(ctx context.Context, q domain.Vector, k int, threshold float32) ([]domain.SearchHit, error) {
	if k < 1 || threshold < 0 || threshold > 1 {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrInvalidSearchParams)
	}
	if len(q) != domain.Dim {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrDimensionMismatch)
	}

	s := x.snap.Load()
	if s == nil || s.len() == 0 {
		return []domain.SearchHit{}, nil
	}

	scores, err := s.scores(ctx, q)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	m := min(2*k, len(scores))
	h := make(worstFirst, 0, m+1)
	for slot, sc := range scores {
		c := candidate{slot: slot, score: sc}
		if len(h) < m {
			heap.Push(&h, c)
			continue
		}
		if better(c, h[0]) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	cands := []candidate(h)
	sort.Slice(cands, func(i, j int) bool { return better(cands[i], cands[j]) })

	hits := make([]domain.SearchHit, 0, k)
	for _, c := range cands {
		sim := (c.score + 1) / 2
		if sim < threshold {
			continue
		}
		hits = append(hits, domain.SearchHit{ProductID: s.ids[c.slot], Score: sim})
		if len(hits) == k {
			break
		}
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}

	return hits, nil
}

func better(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.slot < b.slot
}

func (s *snapshot) scores(ctx context.Context, q domain.Vector) ([]float32, error) {
	n := s.len()
	out := make([]float32, n)

	if n < parallelRows {
		for i := 0; i < n; i++ {
			out[i] = q.Dot(s.row(i))
		}
		return out, nil
	}

	workers := runtime.GOMAXPROCS(0)
	chunk := (n + workers - 1) / workers
	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if (i-start)&1023 == 0 && ctx.Err() != nil {
					return ctx.Err()
				}
				out[i] = q.Dot(s.row(i))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
