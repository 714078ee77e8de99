package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"enrollment-service/config"
	"enrollment-service/internal/catalog"
	"enrollment-service/internal/enrollment"
	"enrollment-service/internal/models"
	"enrollment-service/internal/provider"
	"enrollment-service/internal/service"
	"enrollment-service/internal/store"
	"enrollment-service/internal/util"
)

// Back-fills enrollments for settled deposits the webhook missed: lists the
// provider's completed virtual-account transactions for the last N days and
// reconciles any that are not yet in the owning user's payment history.
// Dry run by default; -run applies the writes.
func main() {
	days := flag.Int("days", 1, "how many days of transactions to scan")
	run := flag.Bool("run", false, "apply enrollments (default is dry run)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	userStore, err := newUserStore(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to initialize record store: %v", err)
	}

	paymentProvider, err := provider.NewClient(
		cfg.Provider.BaseURL, cfg.Provider.LiveSecretKey, cfg.Provider.TestSecretKey, 15*time.Second)
	if err != nil {
		log.Fatalf("Failed to initialize provider client: %v", err)
	}

	courseCatalog := catalog.Default()
	if len(cfg.Catalog) > 0 {
		courseCatalog = catalog.New(cfg.Catalog)
	}

	reconciler := service.NewReconciler(userStore, nil, nil)

	ctx := context.Background()
	end := time.Now()
	start := end.Add(-time.Duration(*days) * 24 * time.Hour)

	mode := "DRY RUN"
	if *run {
		mode = "LIVE"
	}
	log.Printf("[%s] Scanning settled transactions: %s ~ %s",
		mode, start.Format("2006-01-02"), end.Format("2006-01-02"))

	transactions, err := paymentProvider.ListTransactions(ctx, start, end)
	if err != nil {
		log.Fatalf("Failed to list transactions: %v", err)
	}

	var applied, skipped, failed int
	for _, tx := range transactions {
		if tx.Status != models.PaymentStatusDone || !isDepositMethod(tx.Method) {
			continue
		}

		outcome, err := reconcileTransaction(ctx, reconciler, paymentProvider, userStore, courseCatalog, tx, *run)
		switch {
		case err != nil:
			failed++
			log.Printf("  FAIL  %s: %v", tx.OrderID, err)
		case outcome == "":
			skipped++
		default:
			applied++
			log.Printf("  %s", outcome)
		}
	}

	log.Printf("[%s] Done: %d applied, %d skipped, %d failed (of %d transactions)",
		mode, applied, skipped, failed, len(transactions))
}

// reconcileTransaction returns a non-empty description when the
// transaction was (or would be) applied, and "" when it was skipped.
func reconcileTransaction(
	ctx context.Context,
	reconciler *service.Reconciler,
	paymentProvider *provider.Client,
	userStore store.UserStore,
	courseCatalog *catalog.Catalog,
	tx provider.Transaction,
	run bool,
) (string, error) {
	email := tx.CustomerEmail
	if email == "" {
		detail, err := paymentProvider.GetPaymentByOrder(ctx, tx.OrderID)
		if err != nil {
			return "", fmt.Errorf("payment detail lookup: %w", err)
		}
		email = enrollment.ResolveCustomerEmail(detail)
	}
	if email == "" {
		return "", fmt.Errorf("no customer email on payment")
	}

	courseID := enrollment.CourseIDFromOrderID(tx.OrderID)
	payment := models.ResolvedPayment{
		OrderID:  tx.OrderID,
		CourseID: courseID,
		Title:    courseCatalog.Title(courseID),
		Email:    email,
		Amount:   tx.Amount,
		Method:   tx.Method,
	}

	user, err := userStore.FindUserByEmail(ctx, payment.Email)
	if errors.Is(err, store.ErrUserNotFound) {
		return "", fmt.Errorf("no account for %s", payment.Email)
	}
	if err != nil {
		return "", err
	}

	if enrollment.AppliedOrder(enrollment.ParseBundle(user.EnrolledCourses), payment.OrderID) {
		return "", nil
	}

	if !run {
		return fmt.Sprintf("WOULD ENROLL %s -> %s (%s)", payment.Email, payment.CourseID, payment.OrderID), nil
	}

	result, err := reconciler.Reconcile(ctx, payment, 0)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ENROLLED %s -> %s (expires %s)",
		result.Email, result.CourseID, result.ExpiresAt.Format("2006-01-02")), nil
}

func isDepositMethod(method string) bool {
	switch method {
	case "가상계좌", "VIRTUAL_ACCOUNT", "계좌이체", "TRANSFER":
		return true
	}
	return false
}

func newUserStore(cfg config.StoreConfig) (store.UserStore, error) {
	if cfg.Backend == "postgres" {
		return store.NewPostgresStore(cfg.DatabaseURL)
	}
	return store.NewTableStore(cfg.TableSASURL, 10*time.Second)
}
