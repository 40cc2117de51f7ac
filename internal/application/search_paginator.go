package application

import (
	"context"
	"math"

	"github.com/oksasatya/identity-lifecycle-service/internal/domain/entity"
	repo "github.com/oksasatya/identity-lifecycle-service/internal/domain/repository"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// maxOffset bounds the offset handed to the store. Pages beyond it are past
// the end of any realistic result set and still report the total.
const maxOffset = math.MaxInt32

// Page is one window of a search. Total counts every match.
type Page struct {
	Items []entity.Identity
	Total int64
	Page  int
	Size  int
}

type SearchPaginator struct {
	store repo.IdentityStore
	call  storeCall
}

func NewSearchPaginator(store repo.IdentityStore, call storeCall) *SearchPaginator {
	return &SearchPaginator{store: store, call: call}
}

// Search runs a case-insensitive substring match over full name, email and
// username, newest first. page is zero-based.
func (p *SearchPaginator) Search(ctx context.Context, term string, page, size int) (Page, error) {
	if page < 0 {
		return Page{}, entity.ErrInvalidInput
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	offset := maxOffset
	if page <= maxOffset/size {
		offset = page * size
	}

	type result struct {
		items []entity.Identity
		total int64
	}
	res, err := read(ctx, p.call, func(ctx context.Context) (result, error) {
		items, total, err := p.store.Search(ctx, term, offset, size)
		return result{items: items, total: total}, err
	})
	if err != nil {
		return Page{}, err
	}
	if res.items == nil {
		res.items = []entity.Identity{}
	}
	return Page{Items: res.items, Total: res.total, Page: page, Size: size}, nil
}
