package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/SandboxServers/MeridianConsole-sub003/pkg/audit"
	"github.com/SandboxServers/MeridianConsole-sub003/pkg/identity"
)

var (
	dbURL           = flag.String("db-url", getEnv("MERIDIAN_POSTGRES_URL", "postgres://localhost/meridian?sslmode=disable"), "PostgreSQL connection URL")
	tokenSchedule   = flag.String("token-schedule", "0 * * * *", "Cron schedule for expired refresh token purge (default: every hour)")
	claimSchedule   = flag.String("claim-schedule", "30 0 * * *", "Cron schedule for expired membership claim purge (default: 00:30 UTC)")
	deletedSchedule = flag.String("deleted-schedule", "0 1 * * *", "Cron schedule for finalizing soft-deleted users (default: 01:00 UTC)")
	auditSchedule   = flag.String("audit-schedule", "15 1 * * *", "Cron schedule for security event retention purge (default: 01:15 UTC)")
	runOnce         = flag.Bool("run-once", false, "Run all maintenance jobs once and exit")
)

func main() {
	flag.Parse()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	store := identity.NewPostgresStore(db)

	recorder, err := audit.NewDBRecorder(db)
	if err != nil {
		log.Fatalf("Failed to initialize security event recorder: %v", err)
	}

	if *runOnce {
		if err := purgeRefreshTokens(store); err != nil {
			log.Fatalf("Refresh token purge failed: %v", err)
		}
		if err := purgeMembershipClaims(store); err != nil {
			log.Fatalf("Membership claim purge failed: %v", err)
		}
		if err := finalizeDeletedUsers(store); err != nil {
			log.Fatalf("Deleted user finalization failed: %v", err)
		}
		if err := purgeSecurityEvents(recorder); err != nil {
			log.Fatalf("Security event purge failed: %v", err)
		}
		log.Println("Maintenance completed successfully")
		return
	}

	c := cron.New()

	_, err = c.AddFunc(*tokenSchedule, func() {
		if err := purgeRefreshTokens(store); err != nil {
			log.Printf("Refresh token purge failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule refresh token purge: %v", err)
	}

	_, err = c.AddFunc(*claimSchedule, func() {
		if err := purgeMembershipClaims(store); err != nil {
			log.Printf("Membership claim purge failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule membership claim purge: %v", err)
	}

	_, err = c.AddFunc(*deletedSchedule, func() {
		if err := finalizeDeletedUsers(store); err != nil {
			log.Printf("Deleted user finalization failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule deleted user finalization: %v", err)
	}

	_, err = c.AddFunc(*auditSchedule, func() {
		if err := purgeSecurityEvents(recorder); err != nil {
			log.Printf("Security event purge failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule security event purge: %v", err)
	}

	c.Start()
	log.Println("Meridian identity maintenance started")
	log.Printf("Refresh token purge schedule: %s", *tokenSchedule)
	log.Printf("Membership claim purge schedule: %s", *claimSchedule)
	log.Printf("Deleted user finalization schedule: %s", *deletedSchedule)
	log.Printf("Security event purge schedule: %s", *auditSchedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	log.Println("Maintenance stopped")
}

func purgeRefreshTokens(store identity.Store) error {
	ctx := context.Background()
	n, err := store.PurgeExpiredRefreshTokens(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	log.Printf("Purged %d expired refresh tokens", n)
	return nil
}

func purgeMembershipClaims(store identity.Store) error {
	ctx := context.Background()
	n, err := store.PurgeExpiredMembershipClaims(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	log.Printf("Purged %d expired membership claims", n)
	return nil
}

// finalizeDeletedUsers hard-deletes users whose soft-deletion is older than
// the retention grace period.
func finalizeDeletedUsers(store identity.Store) error {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-identity.DeletionGracePeriod)
	n, err := store.FinalizeDeletedUsers(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Printf("Finalized %d deleted users", n)
	return nil
}

func purgeSecurityEvents(recorder *audit.DBRecorder) error {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-audit.RetentionPeriod)
	n, err := recorder.Purge(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Printf("Purged %d expired security events", n)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
