package client

import (
	"net/url"
	"strconv"
)

// OrderBy sorts paged listings
type OrderBy string

const (
	OrderAsc  OrderBy = "ASC"
	OrderDesc OrderBy = "DESC"
)

// VaultAccountsFilter narrows GetVaultAccountsPaged. Zero fields are omitted.
type VaultAccountsFilter struct {
	NamePrefix         string
	NameSuffix         string
	MinAmountThreshold *float64
	AssetID            string
	OrderBy            OrderBy
	Before             string
	After              string
	Limit              int
}

func (f *VaultAccountsFilter) query() url.Values {
	q := url.Values{}
	if f == nil {
		return q
	}
	setString(q, "namePrefix", f.NamePrefix)
	setString(q, "nameSuffix", f.NameSuffix)
	if f.MinAmountThreshold != nil {
		q.Set("minAmountThreshold", strconv.FormatFloat(*f.MinAmountThreshold, 'f', -1, 64))
	}
	setString(q, "assetId", f.AssetID)
	setString(q, "orderBy", string(f.OrderBy))
	setString(q, "before", f.Before)
	setString(q, "after", f.After)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// AssetWalletsFilter narrows GetAssetWallets. Zero fields are omitted.
type AssetWalletsFilter struct {
	TotalAmountLargerThan *float64
	AssetID               string
	OrderBy               OrderBy
	Before                string
	After                 string
	Limit                 int
}

func (f *AssetWalletsFilter) query() url.Values {
	q := url.Values{}
	if f == nil {
		return q
	}
	if f.TotalAmountLargerThan != nil {
		q.Set("totalAmountLargerThan", strconv.FormatFloat(*f.TotalAmountLargerThan, 'f', -1, 64))
	}
	setString(q, "assetId", f.AssetID)
	setString(q, "orderBy", string(f.OrderBy))
	setString(q, "before", f.Before)
	setString(q, "after", f.After)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

func setString(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// withQuery appends q to path. Encode sorts keys, so the signed uri is
// deterministic for a given filter.
func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
