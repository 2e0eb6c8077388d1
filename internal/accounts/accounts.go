// Package accounts manages monitored accounts, their actions and action filters.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"smm_boost/internal/clients"
	"smm_boost/internal/filter"
	"smm_boost/internal/model"
	"smm_boost/internal/poller"
	"smm_boost/internal/rates"
	"smm_boost/internal/storage"
)

var (
	// ErrProvisioning is returned when no feed could be created for an account.
	ErrProvisioning = errors.New("feed provisioning failed")
	// ErrInvalidState is returned when an operation does not apply to the account's current state.
	ErrInvalidState = errors.New("invalid account state")
	// ErrInvalidAccount is returned for an unknown platform or an empty username.
	ErrInvalidAccount = errors.New("invalid account")
)

// Store is the persistence the service needs.
type Store interface {
	storage.AccountStore
	GetFeedByAccount(ctx context.Context, accountID int64) (*model.Feed, error)
	CreateFeed(ctx context.Context, f *model.Feed) error
}

// ProvisionerResolver yields the current feed provisioner.
type ProvisionerResolver interface {
	Provisioner() (clients.FeedProvisioner, error)
}

// Baseliner establishes the watermark of an account's feed.
type Baseliner interface {
	EstablishBaseline(ctx context.Context, account *model.Account) (poller.Baseline, error)
}

// Catalog looks up SMM services.
type Catalog interface {
	Service(ctx context.Context, id int64) (rates.Service, bool, error)
}

// Detail is an account with its feed and actions.
type Detail struct {
	Account model.Account
	Feed    *model.Feed
	Actions []model.Action
}

// AddActionResult describes a created action.
type AddActionResult struct {
	Action *model.Action
	// First is set when the action enabled the account.
	First    bool
	Baseline *poller.Baseline
}

// Service implements the account lifecycle.
type Service struct {
	store    Store
	prov     ProvisionerResolver
	baseline Baseliner
	catalog  Catalog
	log      *slog.Logger
}

// New creates a Service. catalog may be nil.
func New(store Store, prov ProvisionerResolver, baseline Baseliner, catalog Catalog, log *slog.Logger) *Service {
	return &Service{store: store, prov: prov, baseline: baseline, catalog: catalog, log: log}
}

// CreateAccount stores a new account and provisions its feed. The account is
// returned even when provisioning fails; its rss_status is then failed and the
// error wraps ErrProvisioning.
func (s *Service) CreateAccount(ctx context.Context, platform, username, displayName string) (*model.Account, error) {
	p, err := model.ParsePlatform(platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidAccount)
	}

	acc := &model.Account{
		Platform:    p,
		Username:    username,
		DisplayName: strings.TrimSpace(displayName),
		URL:         p.ProfileURL(username),
		RSSStatus:   model.FeedPending,
	}
	if err := s.store.CreateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	s.log.Info("account created", "account_id", acc.ID, "platform", p, "username", username)

	if err := s.provision(ctx, acc); err != nil {
		return acc, err
	}
	return acc, nil
}

// RetryFeedProvisioning provisions the feed of an account whose earlier attempt failed.
func (s *Service) RetryFeedProvisioning(ctx context.Context, accountID int64) (*model.Account, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.RSSStatus == model.FeedActive {
		return acc, fmt.Errorf("%w: account %d already has a feed", ErrInvalidState, accountID)
	}
	if err := s.provision(ctx, acc); err != nil {
		return acc, err
	}
	return acc, nil
}

func (s *Service) provision(ctx context.Context, acc *model.Account) error {
	fail := func(cause error) error {
		if err := s.store.SetAccountFeedStatus(ctx, acc.ID, model.FeedFailed); err != nil {
			s.log.Error("mark feed failed", "account_id", acc.ID, "error", err)
		}
		acc.RSSStatus = model.FeedFailed
		s.log.Warn("feed provisioning failed", "account_id", acc.ID, "error", cause)
		return fmt.Errorf("%w: %w", ErrProvisioning, cause)
	}

	prov, err := s.prov.Provisioner()
	if err != nil {
		return fail(err)
	}
	pf, err := prov.CreateFeed(ctx, acc.URL)
	if err != nil {
		return fail(err)
	}

	feed, err := s.store.GetFeedByAccount(ctx, acc.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		feed = &model.Feed{
			AccountID:  acc.ID,
			ExternalID: pf.ExternalID,
			Title:      pf.Title,
			SourceURL:  pf.SourceURL,
			URL:        pf.URL,
			IsActive:   true,
		}
		if err := s.store.CreateFeed(ctx, feed); err != nil {
			return fail(err)
		}
	case err != nil:
		return fail(err)
	}

	if err := s.store.SetAccountFeedStatus(ctx, acc.ID, model.FeedActive); err != nil {
		return fmt.Errorf("mark feed active: %w", err)
	}
	acc.RSSStatus = model.FeedActive
	s.log.Info("feed provisioned", "account_id", acc.ID, "feed_id", feed.ID, "url", feed.URL)
	return nil
}

// List returns all accounts.
func (s *Service) List(ctx context.Context) ([]model.Account, error) {
	return s.store.ListAccounts(ctx)
}

// Get returns an account with its feed and actions.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &Detail{Account: *acc}
	feed, err := s.store.GetFeedByAccount(ctx, id)
	switch {
	case err == nil:
		d.Feed = feed
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}
	if d.Actions, err = s.store.ListActions(ctx, id); err != nil {
		return nil, err
	}
	return d, nil
}

// SetEnabled pauses or resumes an account.
func (s *Service) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	if err := s.store.SetAccountEnabled(ctx, id, enabled); err != nil {
		return err
	}
	s.log.Info("account toggled", "account_id", id, "enabled", enabled)
	return nil
}

// DeleteAccount removes an account with its actions, filters, feed, ledger and poll log.
// Execution history is kept.
func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.log.Info("account deleted", "account_id", id)
	return nil
}

// EstablishBaseline (re)establishes the feed watermark of an account.
func (s *Service) EstablishBaseline(ctx context.Context, id int64) (poller.Baseline, error) {
	acc, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return poller.Baseline{}, err
	}
	if acc.RSSStatus != model.FeedActive {
		return poller.Baseline{}, fmt.Errorf("%w: account %d has no active feed", ErrInvalidState, id)
	}
	return s.baseline.EstablishBaseline(ctx, acc)
}

// AddAction attaches an action to an account. The first active action enables
// the account and establishes its baseline before returning. A baseline error
// is returned with the created action; the account stays unmonitored until a
// baseline succeeds.
func (s *Service) AddAction(ctx context.Context, accountID int64, action *model.Action) (AddActionResult, error) {
	if err := action.Params.Validate(); err != nil {
		return AddActionResult{}, err
	}
	action.AccountID = accountID
	action.IsActive = true
	s.describe(ctx, action)

	first, err := s.store.CreateAction(ctx, action)
	if err != nil {
		return AddActionResult{}, err
	}
	res := AddActionResult{Action: action, First: first}
	s.log.Info("action added", "account_id", accountID, "action_id", action.ID, "service_id", action.ServiceID, "first", first)
	if !first {
		return res, nil
	}

	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return res, err
	}
	if acc.RSSStatus != model.FeedActive {
		s.log.Warn("baseline deferred until the feed is provisioned", "account_id", accountID, "rss_status", acc.RSSStatus)
		return res, nil
	}
	b, err := s.baseline.EstablishBaseline(ctx, acc)
	if err != nil {
		return res, fmt.Errorf("establish baseline: %w", err)
	}
	res.Baseline = &b
	return res, nil
}

// describe fills the service name and action type from the catalogue when missing.
func (s *Service) describe(ctx context.Context, action *model.Action) {
	if action.ServiceName == "" && s.catalog != nil {
		svc, ok, err := s.catalog.Service(ctx, action.ServiceID)
		switch {
		case err != nil:
			s.log.Warn("look up service", "service_id", action.ServiceID, "error", err)
		case ok:
			action.ServiceName = svc.Name
			if action.ActionType == "" {
				action.ActionType = svc.ActionType
			}
		}
	}
	if action.ActionType == "" && action.ServiceName != "" {
		_, action.ActionType = rates.ParseServiceInfo(action.ServiceName)
	}
}

// RemoveAction deletes an action. last reports that the account was disabled
// because no active action remains.
func (s *Service) RemoveAction(ctx context.Context, id int64) (bool, error) {
	last, err := s.store.DeleteAction(ctx, id)
	if err != nil {
		return false, err
	}
	s.log.Info("action removed", "action_id", id, "account_disabled", last)
	return last, nil
}

// AddFilter validates and stores an action filter.
func (s *Service) AddFilter(ctx context.Context, f *model.Filter) error {
	if f.Scope == "" {
		f.Scope = model.ScopeAll
	}
	if err := filter.Validate(*f); err != nil {
		return err
	}
	if _, err := s.store.GetAction(ctx, f.ActionID); err != nil {
		return err
	}
	return s.store.CreateFilter(ctx, f)
}

// ListFilters returns the filters of an action.
func (s *Service) ListFilters(ctx context.Context, actionID int64) ([]model.Filter, error) {
	return s.store.ListFilters(ctx, actionID)
}

// RemoveFilter deletes a filter and returns it.
func (s *Service) RemoveFilter(ctx context.Context, id int64) (*model.Filter, error) {
	f, err := s.store.GetFilter(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteFilter(ctx, id); err != nil {
		return nil, err
	}
	return f, nil
}
