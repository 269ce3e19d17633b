// Command payments reconciles a bank statement export against outstanding
// ticket balances. Rejected and uninteresting lines are written to
// <statement>.rejects for the treasurer to work through by hand; a full run
// log is teed to <statement>.log.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/danielrichman/snowball-ticketing/internal/app"
	"github.com/danielrichman/snowball-ticketing/internal/clock"
	"github.com/danielrichman/snowball-ticketing/internal/config"
	"github.com/danielrichman/snowball-ticketing/internal/storage/postgres"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "run every check but roll back instead of marking tickets paid")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-dry-run] statement.csv\n", os.Args[0])
		os.Exit(2)
	}
	statementPath := flag.Arg(0)

	logger := logrus.New()
	cfg := config.Load(logger)
	logger.SetLevel(cfg.LogLevel)

	if cfg.BankSortCode == "" || cfg.BankAccountNumber == "" {
		logger.Fatal("BANK_SORT_CODE and BANK_ACCOUNT_NUMBER must be set")
	}

	statement, err := os.Open(statementPath)
	if err != nil {
		logger.Fatalf("open statement: %v", err)
	}
	defer statement.Close()

	// Refusing to overwrite previous outputs keeps an accidental re-run of
	// an already processed statement from clobbering its records.
	rejects, err := createNew(statementPath + ".rejects")
	if err != nil {
		logger.Fatalf("create rejects file: %v", err)
	}
	defer rejects.Close()

	logFile, err := createNew(statementPath + ".log")
	if err != nil {
		logger.Fatalf("create log file: %v", err)
	}
	defer logFile.Close()
	logger.SetOutput(io.MultiWriter(os.Stderr, logFile))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("connect to db: %v", err)
	}
	defer pool.Close()

	tickets := postgres.NewTicketRepository(pool)
	users := postgres.NewUserRepository(pool)
	svc := app.NewPaymentService(tickets, users, clock.NewSystem(), logger,
		cfg.BankSortCode, cfg.BankAccountNumber)

	if *dryRun {
		logger.Info("dry run: no tickets will be marked paid")
	}

	summary, err := svc.ProcessStatement(ctx, statement, rejects, *dryRun)
	if err != nil {
		logger.Fatalf("process statement: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"processed": summary.Processed,
		"rejected":  summary.Rejected,
		"skipped":   summary.Skipped,
	}).Info("statement reconciled")
}

func createNew(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}
