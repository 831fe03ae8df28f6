package dberror

import (
	"github.com/tansive/tenancy/internal/common/apperrors"
)

var (
	ErrDatabase        apperrors.Error = apperrors.New("db error")
	ErrNotFound        apperrors.Error = ErrDatabase.New("not found").SetExitCode(apperrors.ExitNotFound)
	ErrAlreadyExists   apperrors.Error = ErrDatabase.New("already exists").SetExitCode(apperrors.ExitConflict)
	ErrInvalidInput    apperrors.Error = ErrDatabase.New("invalid input").SetExitCode(apperrors.ExitInvalidInput)
	ErrTenantInUse     apperrors.Error = ErrAlreadyExists.New("tenant still owns hostnames or websites")
	ErrConnectivity    apperrors.Error = ErrDatabase.New("database unreachable").SetExitCode(apperrors.ExitConnectivity)
	ErrProvisioning    apperrors.Error = apperrors.New("provisioning failed").SetExitCode(apperrors.ExitProvisioning)
	ErrRollback        apperrors.Error = ErrProvisioning.New("rollback incomplete")
	ErrMigration       apperrors.Error = apperrors.New("migration failed").SetExitCode(apperrors.ExitMigration)
	ErrMigrationSource apperrors.Error = ErrMigration.New("invalid migration source")
)
