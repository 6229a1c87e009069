package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/coopfin/backoffice/internal/analytics"
	"github.com/coopfin/backoffice/internal/app"
	"github.com/coopfin/backoffice/internal/catalog"
	"github.com/coopfin/backoffice/internal/ledger"
	"github.com/coopfin/backoffice/internal/platform/db"
)

var demoAccounts = []ledger.AccountName{
	{Code: "1101", Name: "Caja general"},
	{Code: "1102", Name: "Bancos"},
	{Code: "1401", Name: "Cartera de créditos vigente"},
	{Code: "1402", Name: "Cartera de créditos vencida"},
	{Code: "2101", Name: "Depósitos a la vista"},
	{Code: "2103", Name: "Depósitos a plazo"},
}

var demoOffices = []string{"001", "002"}

const demoIndicators = `[
  {"name": "Liquidez", "numerator": ["1101", "1102"], "denominator": ["2101"], "color": "#1f77b4"},
  {"name": "Morosidad", "numerator": ["1402"], "denominator": {"base": ["1401", "1402"]}, "color": "#d62728"},
  {"name": "Cobertura de depósitos", "numerator": {"components": [{"accounts": ["1101", "1102"], "coefficient": 1}, {"accounts": ["1401"], "coefficient": 0.5}]}, "denominator": ["2101", "2103"], "color": "#2ca02c"}
]`

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying schema...")
	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	fmt.Println("→ Seeding ledger mirror...")
	balances := demoBalances(time.Now().UTC())
	if err := ledger.NewRepository(pool, cfg.BalanceChunkSize).SaveMirror(ctx, demoAccounts, balances); err != nil {
		log.Fatalf("seed ledger: %v", err)
	}
	fmt.Printf("  %d accounts, %d balances\n", len(demoAccounts), len(balances))

	catalogService := catalog.NewService(catalog.NewRepository(pool), nil, nil)

	fmt.Println("→ Seeding indicators...")
	if err := seedIndicators(ctx, catalogService); err != nil {
		log.Fatalf("seed indicators: %v", err)
	}

	fmt.Println("→ Seeding report configurations...")
	if _, err := catalogService.SaveConfiguration(ctx, analytics.ReportConfiguration{
		Name:        "balance-general",
		Description: "Activos líquidos, cartera y captaciones",
		Categories: []analytics.Category{
			{Name: "Disponible", Accounts: []string{"1101", "1102"}},
			{Name: "Cartera", Accounts: []string{"1401", "1402"}},
			{Name: "Captaciones", Accounts: []string{"2101", "2103"}},
		},
		IsActive: true,
	}); err != nil {
		log.Fatalf("seed report configuration: %v", err)
	}
	fmt.Println("✓ Seed complete")
}

func seedIndicators(ctx context.Context, svc *catalog.Service) error {
	var inputs []catalog.IndicatorInput
	if err := json.Unmarshal([]byte(demoIndicators), &inputs); err != nil {
		return err
	}
	for _, in := range inputs {
		_, err := svc.CreateIndicator(ctx, in)
		if errors.Is(err, catalog.ErrDuplicateIndicator) {
			fmt.Printf("  %s already present\n", in.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", in.Name, err)
		}
	}
	return nil
}

// demoBalances produces twelve month-end balances per office and account, growing
// slowly so the trend deltas are non-trivial.
func demoBalances(now time.Time) []ledger.BalanceRow {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var rows []ledger.BalanceRow
	for m := 12; m >= 1; m-- {
		monthEnd := firstOfMonth.AddDate(0, -m+1, -1)
		for oi, office := range demoOffices {
			for ai, acc := range demoAccounts {
				base := float64((ai+1)*10000 + oi*2500)
				rows = append(rows, ledger.BalanceRow{
					OfficeCode:  office,
					AccountCode: acc.Code,
					Date:        monthEnd,
					Amount:      base * (1 + float64(12-m)*0.015),
				})
			}
		}
	}
	return rows
}
