package algebra

import "fmt"

// Kind identifies the concrete type of a Node.
type Kind int

const (
	KindRoot Kind = iota + 1
	KindPattern
	KindNaryJoin
	KindJoin
	KindLeftJoin
	KindUnion
	KindProjection
	KindFilter
	KindExtension
	KindOrder
	KindSlice
	KindDistinct
	KindValues
	KindEmpty
	KindSingleton
	KindService
	KindServiceCall
	KindKeywordSearch
	KindRank
	KindOwned
)

var kindNames = map[Kind]string{
	KindRoot:          "Root",
	KindPattern:       "Pattern",
	KindNaryJoin:      "NaryJoin",
	KindJoin:          "Join",
	KindLeftJoin:      "LeftJoin",
	KindUnion:         "Union",
	KindProjection:    "Projection",
	KindFilter:        "Filter",
	KindExtension:     "Extension",
	KindOrder:         "Order",
	KindSlice:         "Slice",
	KindDistinct:      "Distinct",
	KindValues:        "Values",
	KindEmpty:         "Empty",
	KindSingleton:     "Singleton",
	KindService:       "Service",
	KindServiceCall:   "ServiceCall",
	KindKeywordSearch: "KeywordSearch",
	KindRank:          "Rank",
	KindOwned:         "Owned",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}
