package admin

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const (
	PathUserStatistics        = "/admin/statistics/users"
	PathBookStatistics        = "/admin/statistics/books"
	PathOrderStatistics       = "/admin/statistics/orders"
	PathEntitlementStatistics = "/admin/statistics/entitlements"

	DefaultCurrency = "USD"
)

// Dashboard section fallbacks.
const (
	UserStatisticsFailedMsg        = "Failed to load user statistics."
	BookStatisticsFailedMsg        = "Failed to load book statistics."
	OrderStatisticsFailedMsg       = "Failed to load order statistics."
	EntitlementStatisticsFailedMsg = "Failed to load entitlement statistics."
)

type UserStatistics struct {
	Total         int `json:"total"`
	Active        int `json:"active"`
	Disabled      int `json:"disabled"`
	Pending       int `json:"pending"`
	NewLast30Days int `json:"newLast30Days"`
	NewLast7Days  int `json:"newLast7Days"`
}

type BookStatistics struct {
	Total         int `json:"total"`
	Published     int `json:"published"`
	Draft         int `json:"draft"`
	Unlisted      int `json:"unlisted"`
	NewLast30Days int `json:"newLast30Days"`
}

type PeriodStatistics struct {
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

type OrderStatistics struct {
	Total        int              `json:"total"`
	Paid         int              `json:"paid"`
	Pending      int              `json:"pending"`
	Cancelled    int              `json:"cancelled"`
	Refunded     int              `json:"refunded"`
	Last30Days   PeriodStatistics `json:"last30Days"`
	Last7Days    PeriodStatistics `json:"last7Days"`
	TotalRevenue float64          `json:"totalRevenue"`
	Currency     string           `json:"currency"`
}

type EntitlementStatistics struct {
	Total             int `json:"total"`
	Active            int `json:"active"`
	Revoked           int `json:"revoked"`
	GrantedLast30Days int `json:"grantedLast30Days"`
}

type Revenue struct {
	Total      float64 `json:"total"`
	Last30Days float64 `json:"last30Days"`
	Last7Days  float64 `json:"last7Days"`
	Currency   string  `json:"currency"`
}

// CalculateRevenue summarises order revenue. Without order statistics it is
// zero in DefaultCurrency.
func CalculateRevenue(orders *OrderStatistics) Revenue {
	if orders == nil {
		return Revenue{Currency: DefaultCurrency}
	}
	return Revenue{
		Total:      orders.TotalRevenue,
		Last30Days: orders.Last30Days.Revenue,
		Last7Days:  orders.Last7Days.Revenue,
		Currency:   orders.Currency,
	}
}

func (s *Service) UserStatistics(ctx context.Context) (*UserStatistics, error) {
	var out UserStatistics
	if err := s.client.Get(ctx, PathUserStatistics, &out); err != nil {
		return nil, fail("UserStatistics", err, UserStatisticsFailedMsg)
	}
	return &out, nil
}

func (s *Service) BookStatistics(ctx context.Context) (*BookStatistics, error) {
	var out BookStatistics
	if err := s.client.Get(ctx, PathBookStatistics, &out); err != nil {
		return nil, fail("BookStatistics", err, BookStatisticsFailedMsg)
	}
	return &out, nil
}

func (s *Service) OrderStatistics(ctx context.Context) (*OrderStatistics, error) {
	var out OrderStatistics
	if err := s.client.Get(ctx, PathOrderStatistics, &out); err != nil {
		return nil, fail("OrderStatistics", err, OrderStatisticsFailedMsg)
	}
	return &out, nil
}

func (s *Service) EntitlementStatistics(ctx context.Context) (*EntitlementStatistics, error) {
	var out EntitlementStatistics
	if err := s.client.Get(ctx, PathEntitlementStatistics, &out); err != nil {
		return nil, fail("EntitlementStatistics", err, EntitlementStatisticsFailedMsg)
	}
	return &out, nil
}

// Section is one independently loaded part of the dashboard. Exactly one of
// Data and Error is set.
type Section[T any] struct {
	Data  *T
	Error string
}

func (s Section[T]) OK() bool {
	return s.Data != nil
}

type Dashboard struct {
	Users        Section[UserStatistics]
	Books        Section[BookStatistics]
	Orders       Section[OrderStatistics]
	Entitlements Section[EntitlementStatistics]
	Revenue      Revenue
}

// Err returns the first section error, "" when every section loaded.
func (d Dashboard) Err() string {
	for _, msg := range []string{d.Users.Error, d.Books.Error, d.Orders.Error, d.Entitlements.Error} {
		if msg != "" {
			return msg
		}
	}
	return ""
}

// Dashboard loads the four statistics concurrently. A failing section does
// not affect the others.
func (s *Service) Dashboard(ctx context.Context) Dashboard {
	var (
		d Dashboard
		g errgroup.Group
	)
	g.Go(func() error {
		d.Users = settle(s.UserStatistics(ctx))
		return nil
	})
	g.Go(func() error {
		d.Books = settle(s.BookStatistics(ctx))
		return nil
	})
	g.Go(func() error {
		d.Orders = settle(s.OrderStatistics(ctx))
		return nil
	})
	g.Go(func() error {
		d.Entitlements = settle(s.EntitlementStatistics(ctx))
		return nil
	})
	_ = g.Wait()

	d.Revenue = CalculateRevenue(d.Orders.Data)
	return d
}

func settle[T any](data *T, err error) Section[T] {
	if err != nil {
		return Section[T]{Error: err.Error()}
	}
	return Section[T]{Data: data}
}
