// Package main seeds a fresh database with the default category mappings, a
// cost center tree and a set of pens.
package main

import (
	"context"
	"fmt"
	"os"

	"boigordo/internal/app"
	"boigordo/internal/config"
	"boigordo/internal/core/id"
	"boigordo/internal/domain/costcenter"
	"boigordo/pkg/logger"
)

type centerSeed struct {
	code     string
	name     string
	kind     costcenter.Type
	children []centerSeed
}

var centers = []centerSeed{
	{code: "ACQ", name: "Aquisição", kind: costcenter.TypeAcquisition},
	{code: "ENG", name: "Engorda", kind: costcenter.TypeFattening, children: []centerSeed{
		{code: "ENG-NUT", name: "Nutrição", kind: costcenter.TypeFattening},
		{code: "ENG-SAN", name: "Sanidade", kind: costcenter.TypeFattening},
	}},
	{code: "ADM", name: "Administrativo", kind: costcenter.TypeAdministrative},
	{code: "FIN", name: "Financeiro", kind: costcenter.TypeFinancial},
	{code: "REC", name: "Receitas", kind: costcenter.TypeRevenue},
}

var pens = []struct {
	code     string
	capacity int
}{
	{"P01", 120}, {"P02", 120}, {"P03", 80}, {"P04", 80},
}

func main() {
	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	ctx := logger.WithLogger(context.Background(), log)

	cfg, err := config.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()

	if err := seed(ctx, a); err != nil {
		log.Fatalw("seed failed", "error", err)
	}
	log.Info("seed completed")
}

func seed(ctx context.Context, a *app.App) error {
	if err := a.Categories.EnsureDefaults(ctx); err != nil {
		return fmt.Errorf("category mappings: %w", err)
	}

	tree, err := a.CostCenters.Tree(ctx)
	if err != nil {
		return err
	}
	if len(tree) == 0 {
		for _, c := range centers {
			if err := createCenter(ctx, a.CostCenters, c, nil); err != nil {
				return err
			}
		}
		logger.Info(ctx, "cost centers created")
	} else {
		logger.Info(ctx, "cost centers already present, skipping")
	}

	existing, err := a.Pens.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		logger.Info(ctx, "pens already present, skipping", "count", len(existing))
		return nil
	}
	for _, p := range pens {
		if _, err := a.Pens.Create(ctx, p.code, p.capacity); err != nil {
			return fmt.Errorf("pen %s: %w", p.code, err)
		}
	}
	logger.Info(ctx, "pens created", "count", len(pens))
	return nil
}

func createCenter(ctx context.Context, svc *costcenter.Service, c centerSeed, parent *id.ID) error {
	created, err := svc.Create(ctx, costcenter.CreateInput{Code: c.code, Name: c.name, Type: c.kind, ParentID: parent})
	if err != nil {
		return fmt.Errorf("cost center %s: %w", c.code, err)
	}
	for _, child := range c.children {
		if err := createCenter(ctx, svc, child, &created.ID); err != nil {
			return err
		}
	}
	return nil
}
