// Command accountctl inspects accounts and applies coin operations from the
// operator's shell.
//
// Usage:
//
//	accountctl show    -account 42 | -name player@example.com
//	accountctl players -account 42
//	accountctl add     -account 42 -amount 100 [-coin tournament] [-desc text] [-request-id id]
//	accountctl remove  -account 42 -amount 100 [-coin tournament] [-desc text] [-request-id id]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Proton-105/account-ledger/internal/account"
	apperrors "github.com/Proton-105/account-ledger/internal/errors"
	"github.com/Proton-105/account-ledger/internal/idempotency"
	"github.com/Proton-105/account-ledger/internal/jobs"
	"github.com/Proton-105/account-ledger/internal/jobs/handlers"
	"github.com/Proton-105/account-ledger/internal/ledger"
	"github.com/Proton-105/account-ledger/internal/persistence"
	"github.com/Proton-105/account-ledger/pkg/config"
	"github.com/Proton-105/account-ledger/pkg/logger"
	"github.com/Proton-105/account-ledger/pkg/redis"
)

const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitRejected = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type command struct {
	name      string
	accountID uint
	email     string
	amount    uint
	coin      string
	desc      string
	requestID string
}

func parse(args []string, stderr io.Writer) (command, error) {
	if len(args) == 0 {
		return command{}, errors.New("missing command: show, players, add or remove")
	}

	cmd := command{name: args[0]}
	fs := flag.NewFlagSet("accountctl "+cmd.name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.UintVar(&cmd.accountID, "account", 0, "account id")
	fs.StringVar(&cmd.email, "name", "", "account name (e-mail)")
	fs.UintVar(&cmd.amount, "amount", 0, "coin amount")
	fs.StringVar(&cmd.coin, "coin", "coin", "balance to change: coin or tournament")
	fs.StringVar(&cmd.desc, "desc", "", "transaction description")
	fs.StringVar(&cmd.requestID, "request-id", "", "idempotency key")

	if err := fs.Parse(args[1:]); err != nil {
		return command{}, err
	}

	switch cmd.name {
	case "show":
		if cmd.accountID == 0 && cmd.email == "" {
			return command{}, errors.New("show needs -account or -name")
		}
	case "players":
		if cmd.accountID == 0 {
			return command{}, errors.New("players needs -account")
		}
	case "add", "remove":
		if cmd.accountID == 0 || cmd.amount == 0 {
			return command{}, fmt.Errorf("%s needs -account and -amount", cmd.name)
		}
		if cmd.coin != "coin" && cmd.coin != "tournament" {
			return command{}, fmt.Errorf("unknown -coin %q", cmd.coin)
		}
	default:
		return command{}, fmt.Errorf("unknown command %q", cmd.name)
	}
	if cmd.accountID > 1<<32-1 || cmd.amount > 1<<32-1 {
		return command{}, errors.New("-account and -amount must fit in 32 bits")
	}

	return cmd, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, err := parse(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, "accountctl:", err)
		return exitUsage
	}

	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, "accountctl: load config:", err)
		return exitFailure
	}
	appLog := logger.New(*cfg)
	defer func() { _ = appLog.Close() }()
	log := appLog.Logger
	errs := apperrors.NewHandler(log, false)

	db, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		fmt.Fprintln(stderr, "accountctl:", err)
		return exitFailure
	}
	defer func() { _ = db.Close() }()
	executor := persistence.NewExecutor(db, nil, log)

	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		fmt.Fprintln(stderr, "accountctl:", err)
		return exitFailure
	}
	defer func() { _ = rdb.Close() }()

	var submitter jobs.Manager
	if cfg.Jobs.Backend == jobs.BackendLocal {
		// No server drains a local queue for us: run the audit handler here
		// and wait for it before exiting.
		q := jobs.NewLocalQueue(cfg.Jobs.QueueSize, 1, apperrors.DefaultRetryPolicy, log)
		q.RegisterHandler(account.TaskTypeCoinTransaction, handlers.NewCoinTransactionHandler(executor, nil, log))
		if err := q.Start(); err != nil {
			fmt.Fprintln(stderr, "accountctl:", err)
			return exitFailure
		}
		submitter = q
	} else {
		submitter = jobs.NewManager(rdb.AsynqOpt(), log)
	}
	defer func() { _ = submitter.Close() }()

	service := ledger.NewService(executor, submitter,
		ledger.WithLocking(rdb.Client, cfg.Ledger.LockTTL),
		ledger.WithIdempotency(idempotency.NewManager(idempotency.NewRedisStore(rdb.Client, log), cfg.Ledger.LockTTL, log), cfg.Ledger.IdempotencyTTL),
		ledger.WithLogger(log),
	)

	ctx = logger.WithCorrelationID(ctx)
	out, err := execute(ctx, service, cmd)
	if err != nil {
		message, _ := errs.Handle(ctx, err)
		fmt.Fprintf(stderr, "accountctl: %s (%s)\n", message, apperrors.KindOf(err))
		if apperrors.KindOf(err) == apperrors.KindInsufficientCoins || apperrors.KindOf(err) == apperrors.KindValueOverflow {
			return exitRejected
		}
		return exitFailure
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(stderr, "accountctl:", err)
		return exitFailure
	}

	return exitOK
}

type accountView struct {
	ID                   uint32 `json:"id"`
	Email                string `json:"email"`
	Type                 string `json:"type"`
	PremiumRemainingDays uint32 `json:"premium_remaining_days"`
	PremiumLastDay       int64  `json:"premium_last_day"`
	Coins                uint32 `json:"coins"`
	TournamentCoins      uint32 `json:"tournament_coins"`
}

type playerView struct {
	Name                 string `json:"name"`
	ScheduledForDeletion bool   `json:"scheduled_for_deletion"`
}

func execute(ctx context.Context, service *ledger.Service, cmd command) (any, error) {
	switch cmd.name {
	case "show":
		ref := account.ByID(uint32(cmd.accountID))
		if cmd.accountID == 0 {
			ref = account.ByName(cmd.email)
		}
		acc, err := service.Account(ctx, ref)
		if err != nil {
			return nil, err
		}
		return viewOf(acc)

	case "players":
		players, err := service.Players(ctx, uint32(cmd.accountID))
		if err != nil {
			return nil, err
		}
		views := make([]playerView, 0, len(players))
		for _, p := range players {
			views = append(views, playerView{Name: p.Name, ScheduledForDeletion: p.ScheduledForDeletion()})
		}
		return views, nil

	default:
		req := ledger.Request{
			AccountID:   uint32(cmd.accountID),
			Operation:   account.TransactionAdd,
			CoinType:    account.CoinTypeCoin,
			Amount:      uint32(cmd.amount),
			Description: cmd.desc,
			RequestID:   cmd.requestID,
		}
		if cmd.name == "remove" {
			req.Operation = account.TransactionRemove
		}
		if cmd.coin == "tournament" {
			req.CoinType = account.CoinTypeTournament
		}
		return service.Apply(ctx, req)
	}
}

func viewOf(acc *account.Account) (accountView, error) {
	coins, err := acc.GetCoins()
	if err != nil {
		return accountView{}, err
	}
	tournament, err := acc.GetTournamentCoins()
	if err != nil {
		return accountView{}, err
	}

	view := accountView{
		ID:                   acc.ID(),
		Email:                acc.Email(),
		Type:                 acc.Type().String(),
		PremiumRemainingDays: acc.PremiumRemainingDays(),
		Coins:                coins,
		TournamentCoins:      tournament,
	}
	if !acc.PremiumLastDay().IsZero() {
		view.PremiumLastDay = acc.PremiumLastDay().Unix()
	}
	return view, nil
}
