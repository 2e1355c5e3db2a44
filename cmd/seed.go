package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/retreat-sync/internal/aggregate"
	"github.com/jmehdipour/retreat-sync/internal/app"
	"github.com/jmehdipour/retreat-sync/internal/db"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const demoRetreatID = int64(1)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with a demo retreat",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Named("seed")

		sqlDB, err := db.OpenMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if err := seedRetreat(ctx, sqlDB); err != nil {
			return err
		}

		// collections go through the versioned stores so the seed is announced like any edit
		core := app.NewCore(cfg, sqlDB, logger.Log)
		if err := seedCollection(ctx, log, core.Retreat.Families, demoFamilies()); err != nil {
			return err
		}
		if err := seedCollection(ctx, log, core.Retreat.Spaces, demoSpaces()); err != nil {
			return err
		}
		if err := seedCollection(ctx, log, core.Retreat.Tents, demoTents()); err != nil {
			return err
		}
		if err := seedCollection(ctx, log, core.Retreat.Roster, core.Retreat.NormalizeRoster(demoRoster())); err != nil {
			return err
		}

		log.Info("seed completed", zap.Int64("retreat_id", demoRetreatID))
		return nil
	},
}

// seedRetreat upserts the demo retreat row (idempotent).
func seedRetreat(ctx context.Context, dbx *sqlx.DB) error {
	const q = `
INSERT INTO retreats (id, name, starts_on)
VALUES (?, ?, '2026-08-14')
ON DUPLICATE KEY UPDATE name = VALUES(name)
`
	if _, err := dbx.ExecContext(ctx, q, demoRetreatID, "Summer Family Retreat"); err != nil {
		return fmt.Errorf("upsert retreat: %w", err)
	}
	return nil
}

// seedCollection fills an empty collection and leaves a populated one alone.
func seedCollection[T aggregate.Item[T]](ctx context.Context, log *zap.Logger, store *aggregate.Store[T], items []T) error {
	snap, err := store.Snapshot(ctx, demoRetreatID)
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", store.Kind(), err)
	}
	if len(snap.Items) > 0 {
		log.Info("collection already seeded", zap.Stringer("kind", store.Kind()), zap.Int64("version", snap.Version))
		return nil
	}

	res, err := store.ReplaceAll(ctx, demoRetreatID, snap.Version, items)
	if err != nil {
		return fmt.Errorf("seed %s: %w", store.Kind(), err)
	}
	if !res.Applied {
		return fmt.Errorf("seed %s rejected: %v", store.Kind(), res.Errors)
	}
	log.Info("collection seeded", zap.Stringer("kind", store.Kind()), zap.Int("items", len(items)), zap.Int64("version", res.Version))
	return nil
}

func demoFamilies() []model.Family {
	return []model.Family{
		{Name: "Karimi", Members: model.Members{
			{Name: "Sara Karimi", Email: "sara.karimi@example.org", Phone: "+989121112233"},
			{Name: "Ali Karimi", Phone: "+989121112234"},
		}},
		{Name: "Rahimi", Members: model.Members{
			{Name: "Mina Rahimi", Email: "mina.rahimi@example.org"},
		}},
		{Name: "Moradi", Members: model.Members{
			{Name: "Hossein Moradi", Phone: "+989351234567"},
		}},
	}
}

func demoSpaces() []model.ServiceSpace {
	return []model.ServiceSpace{
		{Name: "Kitchen", MinCapacity: 3, MaxCapacity: 6, Active: true},
		{Name: "Worship", MinCapacity: 2, MaxCapacity: 4, Active: true},
		{Name: "Kids Corner", MinCapacity: 2, MaxCapacity: 5, Active: true},
		{Name: "First Aid", MinCapacity: 1, MaxCapacity: 2, Active: false},
	}
}

func demoTents() []model.Tent {
	return []model.Tent{
		{Label: "A1", Capacity: 4},
		{Label: "A2", Capacity: 4},
		{Label: "B1", Capacity: 6},
		{Label: "B2", Capacity: 6},
	}
}

func demoRoster() []model.RosterEntry {
	return []model.RosterEntry{
		{FullName: "Sara Karimi", Email: "Sara.Karimi@example.org", Phone: "0912 111 2233", Role: model.RoleLeader},
		{FullName: "Mina Rahimi", Email: "mina.rahimi@example.org", Role: model.RoleServant},
		{FullName: "Hossein Moradi", Phone: "0935 123 4567"},
	}
}
