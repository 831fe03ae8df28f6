// Package provisioner sets up a tenant end to end: the tenant row, its physical database,
// a website bound to that database, the hostname pointing at the website and optionally
// the virtual host. Every completed step registers a compensating action; when a later
// step fails the actions run in reverse so a failed run leaves nothing behind.
package provisioner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tansive/tenancy/internal/common/apperrors"
	"github.com/tansive/tenancy/internal/common/logtrace"
	"github.com/tansive/tenancy/internal/common/uuid"
	"github.com/tansive/tenancy/internal/tenancy/db"
	"github.com/tansive/tenancy/internal/tenancy/db/dberror"
	"github.com/tansive/tenancy/internal/tenancy/db/dbmanager"
	"github.com/tansive/tenancy/internal/tenancy/db/models"
	"github.com/tansive/tenancy/internal/tenancy/naming"
	"github.com/tansive/tenancy/internal/tenancy/resolver"
	"github.com/tansive/tenancy/internal/tenancy/webserver"
)

// maxNameAttempts bounds the collision suffixes tried for a database name.
const maxNameAttempts = 100

// Steps of a provisioning run, as named in errors and logs.
const (
	StepValidate  = "validate"
	StepConflict  = "conflict check"
	StepTenant    = "create tenant"
	StepDatabase  = "create database"
	StepWebsite   = "create website"
	StepHostname  = "create hostname"
	StepWebserver = "configure webserver"
	StepVerify    = "verify"
)

// Options are per-request switches.
type Options struct {
	Webserver bool
}

// Request describes a tenant to provision.
type Request struct {
	TenantName string `validate:"required,tenantName"`
	Hostname   string `validate:"required,hostname_idn"`
	AdminEmail string `validate:"required,email"`
	Options    Options
}

// Result describes a provisioned tenant.
type Result struct {
	RunID     string           `json:"run_id" yaml:"run_id"`
	Tenant    *models.Tenant   `json:"tenant" yaml:"tenant"`
	Database  *models.Database `json:"database" yaml:"database"`
	Website   *models.Website  `json:"website" yaml:"website"`
	Hostname  *models.Hostname `json:"hostname" yaml:"hostname"`
	Webserver bool             `json:"webserver" yaml:"webserver"`
}

// ExitCode is 0 for a provisioned tenant. A nil Result reports a failure.
func (r *Result) ExitCode() int {
	if r == nil || r.Tenant == nil || r.Hostname == nil {
		return apperrors.ExitProvisioning
	}
	return apperrors.ExitOK
}

// Recorder receives provisioning metrics. metrics.Metrics implements it.
type Recorder interface {
	ProvisioningFinished(err error, elapsed time.Duration)
	RollbackFinished(err error)
}

// Config holds the collaborators of a Provisioner.
type Config struct {
	Store    db.EntityStore
	Registry *dbmanager.Registry
	Resolver *resolver.Resolver
	// Webserver is used for requests with Options.Webserver set. Nil means webserver.Noop,
	// which rejects such requests as invalid input.
	Webserver webserver.Configurator
	// TenantRoles gives every tenant database its own login role.
	TenantRoles bool
	Recorder    Recorder
}

// Provisioner runs provisioning workflows. It is safe for concurrent use.
type Provisioner struct {
	cfg Config
}

// New returns a Provisioner.
func New(cfg Config) *Provisioner {
	if cfg.Webserver == nil {
		cfg.Webserver = webserver.Noop{}
	}
	return &Provisioner{cfg: cfg}
}

type compensation struct {
	step string
	undo func(ctx context.Context) error
}

// run is the state of one SetupTenant call.
type run struct {
	p      *Provisioner
	result *Result
	undo   []compensation
}

func (r *run) push(step string, undo func(ctx context.Context) error) {
	r.undo = append(r.undo, compensation{step: step, undo: undo})
}

// rollback runs the compensations in reverse on a context that ignores cancellation of
// ctx, and returns every failure.
func (r *run) rollback(ctx context.Context) []error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(r.undo) - 1; i >= 0; i-- {
		c := r.undo[i]
		err := c.undo(ctx)
		if r.p.cfg.Recorder != nil {
			r.p.cfg.Recorder.RollbackFinished(err)
		}
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("step", c.step).Msg("rollback failed")
			errs = append(errs, fmt.Errorf("undo %s: %w", c.step, err))
			continue
		}
		log.Ctx(ctx).Info().Str("step", c.step).Msg("rolled back")
	}
	r.undo = nil
	return errs
}

// fail rolls back and wraps err as a provisioning failure of step. Rollback failures are
// attached to the returned error. A unique violation on the tenant or hostname means a
// concurrent run won the name after checkConflicts; with a clean rollback that is reported
// as a conflict, the same as a name taken before the run.
func (r *run) fail(ctx context.Context, step string, err error) error {
	log.Ctx(ctx).Error().Err(err).Str("step", step).Msg("provisioning step failed")
	rbErrs := r.rollback(ctx)
	if len(rbErrs) == 0 && (step == StepTenant || step == StepHostname) && errors.Is(err, dberror.ErrAlreadyExists) {
		return dberror.ErrAlreadyExists.MsgErr(fmt.Sprintf("provisioning lost a race at step %q", step), err).SetExpandError(true)
	}
	errs := []error{err}
	msg := fmt.Sprintf("provisioning failed at step %q", step)
	if len(rbErrs) > 0 {
		errs = append(errs, dberror.ErrRollback.Err(rbErrs...).SetExpandError(true))
		msg += " and rollback is incomplete"
	}
	return dberror.ErrProvisioning.MsgErr(msg, errs...).SetExpandError(true)
}

// SetupTenant provisions req. On failure nothing created by the run is left behind
// unless the returned error reports an incomplete rollback.
func (p *Provisioner) SetupTenant(ctx context.Context, req Request) (result *Result, err error) {
	runID := uuid.New().String()
	ctx = logtrace.WithRunId(ctx, runID)
	ctx = log.Ctx(ctx).With().Str("tenant", req.TenantName).Str("hostname", req.Hostname).Logger().WithContext(ctx)

	start := time.Now()
	defer func() {
		if p.cfg.Recorder != nil {
			p.cfg.Recorder.ProvisioningFinished(err, time.Since(start))
		}
	}()

	if err := V().Struct(req); err != nil {
		log.Ctx(ctx).Info().Err(err).Msg("invalid provisioning request")
		return nil, validationError(err)
	}
	host, err := naming.NormalizeHostname(req.Hostname)
	if err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("invalid hostname", err)
	}
	if req.Options.Webserver {
		if _, ok := p.cfg.Webserver.(webserver.Noop); ok {
			return nil, dberror.ErrInvalidInput.Msg("webserver integration is not configured (webserver.sites_dir)")
		}
	}
	if err := p.checkConflicts(ctx, req.TenantName, host); err != nil {
		return nil, err
	}

	r := &run{p: p, result: &Result{RunID: runID, Webserver: req.Options.Webserver}}
	store := p.cfg.Store

	tenant := &models.Tenant{Name: req.TenantName, Email: req.AdminEmail}
	if err := store.CreateTenant(ctx, tenant); err != nil {
		return nil, r.fail(ctx, StepTenant, err)
	}
	r.result.Tenant = tenant
	r.push(StepTenant, func(ctx context.Context) error {
		return store.DeleteTenant(ctx, tenant.ID)
	})

	database, err := p.createDatabase(ctx, r, tenant)
	if err != nil {
		return nil, r.fail(ctx, StepDatabase, err)
	}
	r.result.Database = database

	website := &models.Website{TenantID: tenant.ID, DatabaseID: database.ID}
	if err := store.CreateWebsite(ctx, website); err != nil {
		return nil, r.fail(ctx, StepWebsite, err)
	}
	r.result.Website = website
	r.push(StepWebsite, func(ctx context.Context) error {
		return store.DeleteWebsite(ctx, website.ID)
	})

	hostname := &models.Hostname{Hostname: host, TenantID: tenant.ID, WebsiteID: website.ID}
	if err := store.CreateHostname(ctx, hostname); err != nil {
		return nil, r.fail(ctx, StepHostname, err)
	}
	r.result.Hostname = hostname
	r.push(StepHostname, func(ctx context.Context) error {
		p.cfg.Resolver.Invalidate(hostname.Hostname)
		return store.DeleteHostname(ctx, hostname.ID)
	})

	if req.Options.Webserver {
		site := webserver.Site{WebsiteID: website.ID, Tenant: tenant.Name, Hostnames: []string{hostname.Hostname}}
		if err := p.cfg.Webserver.Configure(ctx, site); err != nil {
			return nil, r.fail(ctx, StepWebserver, err)
		}
		r.push(StepWebserver, func(ctx context.Context) error {
			return p.cfg.Webserver.Remove(ctx, site)
		})
	}

	if err := p.verify(ctx, hostname.Hostname, database); err != nil {
		return nil, r.fail(ctx, StepVerify, err)
	}

	log.Ctx(ctx).Info().
		Int64("tenant_id", tenant.ID).
		Str("database", database.Name).
		Int64("website_id", website.ID).
		Msg("tenant provisioned")
	return r.result, nil
}

// checkConflicts rejects a request whose tenant name or hostname is taken. It runs before
// any mutation.
func (p *Provisioner) checkConflicts(ctx context.Context, tenantName, host string) error {
	if _, err := p.cfg.Store.FindTenantByName(ctx, tenantName); err == nil {
		return dberror.ErrAlreadyExists.Msg(fmt.Sprintf("tenant %s already exists", tenantName))
	} else if !errors.Is(err, dberror.ErrNotFound) {
		return dberror.ErrProvisioning.MsgErr(fmt.Sprintf("provisioning failed at step %q", StepConflict), err)
	}
	if _, err := p.cfg.Store.FindHostnameByHostname(ctx, host); err == nil {
		return dberror.ErrAlreadyExists.Msg(fmt.Sprintf("hostname %s already exists", host))
	} else if !errors.Is(err, dberror.ErrNotFound) {
		return dberror.ErrProvisioning.MsgErr(fmt.Sprintf("provisioning failed at step %q", StepConflict), err)
	}
	return nil
}

// databaseName derives a name for tenant that is neither recorded nor known to the engine.
func (p *Provisioner) databaseName(ctx context.Context, tenant *models.Tenant) (string, error) {
	reg := p.cfg.Registry
	existing, err := reg.Driver().ListDatabases(ctx, reg.System())
	if err != nil {
		return "", err
	}
	taken := make(map[string]bool, len(existing))
	for _, n := range existing {
		taken[n] = true
	}

	base := naming.DatabaseName(tenant.ID, tenant.Name)
	name := base
	for n := 1; n <= maxNameAttempts; n++ {
		recorded, err := p.cfg.Store.DatabaseNameExists(ctx, name)
		if err != nil {
			return "", err
		}
		if !recorded && !taken[name] {
			return name, nil
		}
		log.Ctx(ctx).Info().Str("database", name).Msg("database name taken")
		name = naming.WithSuffix(base, n)
	}
	return "", dberror.ErrAlreadyExists.Msg(fmt.Sprintf("no free database name for %s", base))
}

// createDatabase creates the physical database and its record, pushing a compensation
// for each.
func (p *Provisioner) createDatabase(ctx context.Context, r *run, tenant *models.Tenant) (*models.Database, error) {
	reg := p.cfg.Registry
	name, err := p.databaseName(ctx, tenant)
	if err != nil {
		return nil, err
	}
	if err := naming.ValidateDatabaseName(name); err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("invalid database name", err)
	}

	var username string
	if p.cfg.TenantRoles && reg.Credentials().Enabled() {
		username = name
	}
	target, err := reg.Credentials().Target(name, username)
	if err != nil {
		return nil, err
	}
	ctx = log.Ctx(ctx).With().Str("database", name).Logger().WithContext(ctx)

	if err := reg.Driver().CreateDatabase(ctx, reg.System(), target); err != nil {
		return nil, err
	}
	log.Ctx(ctx).Info().Msg("created database")
	r.push(StepDatabase, func(ctx context.Context) error {
		if err := reg.Evict(name); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("database", name).Msg("unable to close pool")
		}
		return reg.Driver().DropDatabase(ctx, reg.System(), target)
	})

	d := &models.Database{Name: name, Driver: reg.Driver().Name(), Username: target.Username}
	if err := p.cfg.Store.CreateDatabase(ctx, d); err != nil {
		return nil, err
	}
	r.push(StepDatabase, func(ctx context.Context) error {
		return p.cfg.Store.DeleteDatabase(ctx, d.ID)
	})
	return d, nil
}

// verify resolves host through the resolver and pings the database it lands on.
func (p *Provisioner) verify(ctx context.Context, host string, want *models.Database) error {
	p.cfg.Resolver.Invalidate(host)
	h, err := p.cfg.Resolver.Handle(ctx, host)
	if err != nil {
		return err
	}
	if h.Database.ID != want.ID {
		return fmt.Errorf("hostname %s resolves to database %s, want %s", host, h.Database.Name, want.Name)
	}
	return h.Ping(ctx)
}

// AddHostname binds another hostname to an existing website. When the website has a
// virtual host, it is rewritten with every hostname of the website.
func (p *Provisioner) AddHostname(ctx context.Context, websiteID int64, hostname string) (*models.Hostname, error) {
	host, err := naming.NormalizeHostname(hostname)
	if err != nil {
		return nil, dberror.ErrInvalidInput.MsgErr("invalid hostname", err)
	}
	ctx = log.Ctx(ctx).With().Str("hostname", host).Int64("website_id", websiteID).Logger().WithContext(ctx)

	website, err := p.cfg.Store.FindWebsiteByID(ctx, websiteID)
	if err != nil {
		return nil, err
	}
	if _, err := p.cfg.Store.FindHostnameByHostname(ctx, host); err == nil {
		return nil, dberror.ErrAlreadyExists.Msg(fmt.Sprintf("hostname %s already exists", host))
	} else if !errors.Is(err, dberror.ErrNotFound) {
		return nil, err
	}

	h := &models.Hostname{Hostname: host, TenantID: website.TenantID, WebsiteID: website.ID}
	if err := p.cfg.Store.CreateHostname(ctx, h); err != nil {
		return nil, err
	}
	p.cfg.Resolver.Invalidate(host)

	if c, ok := p.cfg.Webserver.(interface{ Configured(int64) bool }); ok && c.Configured(website.ID) {
		if err := p.reconfigure(ctx, website); err != nil {
			// the hostname is only useful together with its virtual host
			if delErr := p.cfg.Store.DeleteHostname(context.WithoutCancel(ctx), h.ID); delErr != nil {
				return nil, dberror.ErrProvisioning.MsgErr("unable to configure webserver", err, delErr)
			}
			return nil, dberror.ErrProvisioning.MsgErr("unable to configure webserver", err)
		}
	}
	log.Ctx(ctx).Info().Msg("hostname added")
	return h, nil
}

func (p *Provisioner) reconfigure(ctx context.Context, website *models.Website) error {
	tenant, err := p.cfg.Store.FindTenantByID(ctx, website.TenantID)
	if err != nil {
		return err
	}
	hostnames, err := p.cfg.Store.ListHostnamesByWebsite(ctx, website.ID)
	if err != nil {
		return err
	}
	site := webserver.Site{WebsiteID: website.ID, Tenant: tenant.Name}
	for _, h := range hostnames {
		site.Hostnames = append(site.Hostnames, h.Hostname)
	}
	return p.cfg.Webserver.Configure(ctx, site)
}
