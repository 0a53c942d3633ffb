package pagination

const (
	DefaultLimit = 20
	MaxLimit     = 250
)

type Pagination struct {
	Limit  int `form:"limit,default=20" binding:"gte=0,lte=250"`
	Offset int `form:"offset,default=0" binding:"gte=0"`
}

// Normalize clamps the page into the accepted window.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

type PageInfo struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// BuildPageInfo expects data fetched with Limit+1 rows and trims the extra row.
func BuildPageInfo[T any](data []*T, p Pagination) ([]*T, PageInfo) {
	info := PageInfo{Limit: p.Limit, Offset: p.Offset}
	if len(data) > p.Limit {
		info.HasMore = true
		data = data[:p.Limit]
	}
	return data, info
}
