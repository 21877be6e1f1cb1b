package finpilot

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/finpilot/finpilot/internal/bus"
	"github.com/finpilot/finpilot/internal/config"
	"github.com/finpilot/finpilot/internal/controllers"
	"github.com/finpilot/finpilot/internal/engine"
	"github.com/finpilot/finpilot/internal/gateway"
	"github.com/finpilot/finpilot/internal/migrations"
	"github.com/finpilot/finpilot/internal/repository"
	"github.com/finpilot/finpilot/internal/scheduler"
	"github.com/finpilot/finpilot/internal/store"
	"github.com/finpilot/finpilot/pkg/finpilot/core"
	"github.com/finpilot/finpilot/pkg/finpilot/domain"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/go-sql-driver/mysql"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Start boots the workflow store, the execution engine, the scheduler loop
// and the HTTP server. This call blocks until the HTTP server stops.
func Start(mux *http.ServeMux) error {

	databaseType := config.GetSystemSettingString(config.DATABASE_TYPE)
	if databaseType != config.DATABASE_TYPE_POSTGRES && databaseType != config.DATABASE_TYPE_MYSQL && databaseType != config.DATABASE_TYPE_SQLLITE {
		panic("FINPILOT_DATABASE_TYPE must be set to one of the following values: POSTGRES, MYSQL, SQLLITE")
	}

	var db *sql.DB
	if databaseType == config.DATABASE_TYPE_POSTGRES {
		db = setupPostgresDatabase()
		defer db.Close()
	}
	if databaseType == config.DATABASE_TYPE_SQLLITE {
		db = setupSqlLiteDatabase()
		defer db.Close()
	}
	if databaseType == config.DATABASE_TYPE_MYSQL {
		db = setupMysqlDatabase()
		defer db.Close()
	}

	clock := core.NewRealClock()

	definitionRepo := repository.NewWorkflowDefinitionRepository(db)
	scheduleRepo := repository.NewScheduledTransactionRepository(db)
	executionRepo := repository.NewExecutionRepository(db)
	eventLogRepo := repository.NewEventLogRepository(db)
	userRepo := repository.NewUserRepository(db, clock)

	eventBus, err := bus.New(config.GetSystemSettingInteger(config.EVENT_REPLAY_BUFFER_SIZE), eventLogRepo, clock)
	if err != nil {
		slog.Error("Failed to initialize event bus", "error", err)
		return err
	}
	eventBus.Subscribe(func(ev domain.Event) {
		slog.Debug("Event published", "sequence", ev.Sequence, "kind", ev.Kind,
			"workflow_id", ev.WorkflowID, "execution_id", ev.ExecutionID)
	})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := eventBus.Trim(); err != nil {
				slog.Error("Failed to trim event log", "error", err)
			}
		}
	}()

	workflowStore := store.NewWorkflowStore(definitionRepo, scheduleRepo, eventBus, clock)
	if err := workflowStore.Load(); err != nil {
		slog.Error("Failed to load workflow store", "error", err)
		return err
	}

	var gw gateway.BankTransferGateway
	var accounts gateway.AccountStateProvider
	if baseURL := config.GetSystemSettingString(config.GATEWAY_BASE_URL); baseURL != "" {
		httpGateway := gateway.NewHTTPGateway(baseURL,
			config.GetSystemSettingString(config.GATEWAY_INTEGRATION_ID),
			config.GetSystemSettingString(config.GATEWAY_INTEGRATION_KEY))
		gw = httpGateway
		accounts = httpGateway
		slog.Info("Using HTTP bank gateway", "base_url", baseURL)
	} else {
		memGateway := gateway.NewMemoryGateway()
		gw = memGateway
		accounts = memGateway
		slog.Warn("No gateway base url configured, using in-memory gateway")
	}

	executor := engine.NewEngine(workflowStore, gw, accounts, executionRepo, eventBus, clock,
		config.GetSystemSettingInteger(config.EXECUTION_HISTORY_LIMIT))

	sched := scheduler.NewScheduler(executor, workflowStore, gw, accounts, eventBus, clock)
	dur, err := time.ParseDuration(config.GetSystemSettingString(config.SCHEDULER_INTERVAL))
	if err != nil {
		dur = time.Minute
	}
	go sched.Start(context.Background(), dur)

	bootstrapUser(userRepo)

	if mux == nil {
		mux = http.NewServeMux()
	}
	workflowsController := controllers.NewWorkflowsController(workflowStore, executor, sched, userRepo)
	workflowsController.RegisterRoutes(mux)
	schedulesController := controllers.NewSchedulesController(workflowStore, sched, userRepo)
	schedulesController.RegisterRoutes(mux)
	eventsController := controllers.NewEventsController(eventBus, userRepo)
	eventsController.RegisterRoutes(mux)

	addr := ":" + config.GetSystemSettingString(config.SERVER_WEB_PORT)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	slog.Info("Starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("HTTP server failed", "error", err)
		return err
	}
	return nil
}

// bootstrapUser creates the initial admin user on an empty users table. The
// generated API key is logged exactly once; it is not recoverable later.
func bootstrapUser(userRepo *repository.UserRepository) {
	n, err := userRepo.Count()
	if err != nil {
		slog.Error("Failed to count users", "error", err)
		return
	}
	if n > 0 {
		return
	}

	username := config.GetSystemSettingString(config.BOOTSTRAP_USERNAME)
	password := config.GetSystemSettingString(config.BOOTSTRAP_PASSWORD)
	if password == "" {
		password = uuid.NewString()
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("Failed to hash bootstrap password", "error", err)
		return
	}
	apiKey := uuid.NewString()
	u := &domain.User{
		Username: username,
		Password: string(hash),
		ApiKey:   sql.NullString{String: apiKey, Valid: true},
		Enabled:  sql.NullBool{Bool: true, Valid: true},
	}
	if _, err := userRepo.Save(u); err != nil {
		slog.Error("Failed to create bootstrap user", "error", err)
		return
	}
	slog.Info("Created bootstrap user", "username", username, "api_key", apiKey)
}

func setupPostgresDatabase() *sql.DB {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		panic("FINPILOT_DATABASE_URL must be set when using the POSTGRES database type")
	}
	slog.Info("Using Postgres database", "url", dbURL)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("postgres", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening Postgres database")
	dbPostgres, err := sql.Open("postgres", dbURL)
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		os.Exit(1)
	}
	return dbPostgres
}

func setupSqlLiteDatabase() *sql.DB {
	fileName := config.GetSystemSettingString(config.DATABASE_SQLLITE_FILE_NAME)
	if fileName == "" {
		panic("FINPILOT_DATABASE_SQLLITE_FILE_NAME must be set")
	}
	dbURL := "sqlite3://" + fileName
	slog.Info("Using SQLite database", "file", fileName)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("sqllite3", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening SQLite database")
	dbSqlLite, err := sql.Open("sqlite3", fileName)
	if err != nil {
		log.Fatalf("Failed to open SQLite DB: %v", err)
	}
	if err := dbSqlLite.Ping(); err != nil {
		log.Fatalf("Failed to ping SQLite DB: %v", err)
	}
	return dbSqlLite
}

func setupMysqlDatabase() *sql.DB {
	dbURL := config.GetSystemSettingString(config.DATABASE_URL)
	if dbURL == "" {
		panic("FINPILOT_DATABASE_URL must be set when using the MYSQL database type")
	}
	if !strings.Contains(dbURL, "parseTime=true") {
		panic("FINPILOT_DATABASE_URL must contain 'parseTime=true' for MySQL")
	}
	if !strings.HasPrefix(dbURL, "mysql://") {
		panic("FINPILOT_DATABASE_URL must start with 'mysql://' for MySQL")
	}

	slog.Info("Using MySQL database", "url", dbURL)
	slog.Info("Running migrations")
	if err := runMigrationsFromEmbed("mysql", dbURL); err != nil {
		slog.Error("DB migration failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Opening MySQL database")
	dbMysql, err := sql.Open("mysql", strings.Replace(dbURL, "mysql://", "", 1))
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		os.Exit(1)
	}
	return dbMysql
}

func runMigrationsFromEmbed(migrationsPath string, dbURL string) error {
	sub, err := fs.Sub(migrations.FS, migrationsPath)
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func SetupLogger() {
	w := os.Stderr
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      slog.LevelInfo,
			TimeFormat: time.RFC3339Nano,
		}),
	))
}
