package catalog

import (
	"context"
	"slices"
	"sync"

	"github.com/meigma/dbpf"
	"github.com/meigma/dbpf/exemplar"
	"github.com/meigma/dbpf/internal/pool"
)

// familyScan memoizes the family ids found for each cohort so that shared
// parents are read once.
type familyScan struct {
	c    *Catalog
	mu   sync.Mutex
	memo map[*dbpf.Entry][]uint32
}

// indexFamilies groups exemplars by the family ids they or their parent
// cohorts declare. Members keep catalog order; a key appears once per family.
func (c *Catalog) indexFamilies(ctx context.Context) error {
	candidates := c.entries.FindAll(dbpf.Q().WithType(dbpf.TypeExemplar))
	s := &familyScan{c: c, memo: make(map[*dbpf.Entry][]uint32)}

	p := pool.New(ctx, pool.WithWorkers(c.cfg.workers), pool.WithLogger(c.cfg.logger))
	futures := make([]*pool.Future[[]uint32], 0, len(candidates))
	members := make([]*dbpf.Entry, 0, len(candidates))
	var submitErr error
	for _, e := range candidates {
		if e.TGI().Group == dbpf.GroupLotConfiguration {
			continue
		}
		fut, err := pool.Submit(ctx, p, func(context.Context) ([]uint32, error) {
			return s.families(e, nil)
		})
		if err != nil {
			submitErr = err
			break
		}
		futures = append(futures, fut)
		members = append(members, e)
	}
	defer p.Close()
	if submitErr != nil {
		return submitErr
	}

	families := make(map[uint32][]*dbpf.Entry)
	seen := make(map[uint32]map[dbpf.TGI]struct{})
	for i, fut := range futures {
		ids, err := fut.Wait(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e := members[i]
		if err != nil {
			c.cfg.logger.Warn("skip exemplar in family index", "tgi", e.TGI(), "archive", e.Archive().Path(), "error", err)
			continue
		}
		for _, id := range ids {
			if seen[id] == nil {
				seen[id] = make(map[dbpf.TGI]struct{})
			}
			if _, dup := seen[id][e.TGI()]; dup {
				continue
			}
			seen[id][e.TGI()] = struct{}{}
			families[id] = append(families[id], e)
		}
	}
	c.families = families
	c.cfg.logger.Debug("indexed families", "families", len(families))
	return nil
}

// families returns the family ids of e. The raw payload is searched for the
// family property first so that most exemplars are never fully parsed.
func (s *familyScan) families(e *dbpf.Entry, visited map[*dbpf.Entry]struct{}) ([]uint32, error) {
	data, err := e.Decompress()
	if err != nil {
		return nil, err
	}

	var parent dbpf.TGI
	if exemplar.MayContain(data, dbpf.PropertyFamily) || isText(data) {
		ex, err := exemplar.Parse(data)
		if err != nil {
			return nil, err
		}
		if ids, ok := ex.Uint32s(dbpf.PropertyFamily); ok && len(ids) > 0 {
			return ids, nil
		}
		parent = ex.Parent
	} else {
		parent, _ = exemplar.ParentOf(data)
	}
	if parent.IsZero() {
		return nil, nil
	}
	pe, ok := s.c.entries.Find(parent.Query())
	if !ok {
		return nil, nil
	}
	if _, loop := visited[pe]; loop || pe == e {
		return nil, nil
	}

	s.mu.Lock()
	ids, ok := s.memo[pe]
	s.mu.Unlock()
	if ok {
		return ids, nil
	}

	next := make(map[*dbpf.Entry]struct{}, len(visited)+1)
	for k := range visited {
		next[k] = struct{}{}
	}
	next[e] = struct{}{}
	ids, err = s.families(pe, next)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.memo[pe] = ids
	s.mu.Unlock()
	return ids, nil
}

func isText(data []byte) bool {
	return len(data) > 3 && data[3] == 'T'
}

// Family returns the exemplars belonging to family id in catalog order.
func (c *Catalog) Family(id uint32) ([]*dbpf.Entry, bool) {
	members, ok := c.families[id]
	return slices.Clone(members), ok
}

// Families returns every family id in ascending order.
func (c *Catalog) Families() []uint32 {
	ids := make([]uint32, 0, len(c.families))
	for id := range c.families {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
