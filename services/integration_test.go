package services

import (
	"errors"
	"os"
	"sync"
	"testing"

	"pack-battle-system/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB opens the integration database, skipping when none is configured.
// The atomicity properties under test (row locks, conditional updates,
// unique-index dedup) need a real Postgres; set TEST_DATABASE_URL to run.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Box{}, &models.BoxCard{}, &models.BoxSealedProduct{},
		&models.Battle{}, &models.Participant{}, &models.Pull{},
		&models.Wallet{}, &models.CoinTransaction{}, &models.PaymentEvent{},
		&models.Order{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func seedBox(t *testing.T, db *gorm.DB, packPrice int64) *models.Box {
	t.Helper()
	box := &models.Box{
		ID:        uuid.NewString(),
		Name:      "Test Box " + uuid.NewString()[:8],
		Slug:      "test-box-" + uuid.NewString(),
		PackPrice: packPrice,
		Status:    models.BoxStatusPublished,
	}
	if err := db.Create(box).Error; err != nil {
		t.Fatalf("failed to seed box: %v", err)
	}
	card := models.BoxCard{
		ID: uuid.NewString(), BoxID: box.ID, CardID: "card-common",
		Name: "Common", PullRate: 100, CoinValue: 10,
	}
	if err := db.Create(&card).Error; err != nil {
		t.Fatalf("failed to seed card: %v", err)
	}
	return box
}

func fundUser(t *testing.T, db *gorm.DB, wallets *WalletService, amount int64) string {
	t.Helper()
	userID := uuid.NewString()
	if err := wallets.Credit(db, userID, amount, models.CoinTxnPurchase, "test-seed"); err != nil {
		t.Fatalf("failed to fund user: %v", err)
	}
	return userID
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	db := testDB(t)
	wallets := NewWalletService(db)
	battles := NewBattleService(db, wallets)
	box := seedBox(t, db, 50)

	creator := fundUser(t, db, wallets, 1000)
	battle, err := battles.CreateBattle(creator, BattleConfig{
		BoxID:           box.ID,
		Format:          models.BattleFormatSolo,
		Mode:            models.BattleModeNormal,
		MaxParticipants: 4,
		EntryFee:        100,
		Rounds:          2,
	})
	if err != nil {
		t.Fatalf("failed to create battle: %v", err)
	}

	// 3 free seats, 8 contenders. Exactly 3 may win one.
	const contenders = 8
	users := make([]string, contenders)
	for i := range users {
		users[i] = fundUser(t, db, wallets, 1000)
	}

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = battles.JoinBattle(battle.ID, users[i])
		}(i)
	}
	wg.Wait()

	admitted, rejected := 0, 0
	for i, err := range results {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, ErrBattleFull) || errors.Is(err, ErrBattleNotWaiting):
			rejected++
		default:
			t.Fatalf("contender %d: unexpected error %v", i, err)
		}
	}
	if admitted != 3 {
		t.Fatalf("admitted %d contenders, want exactly 3", admitted)
	}
	if rejected != contenders-3 {
		t.Fatalf("rejected %d contenders, want %d", rejected, contenders-3)
	}

	var reloaded models.Battle
	if err := db.First(&reloaded, "id = ?", battle.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.BattleStatusInProgress {
		t.Fatalf("full battle status = %s, want IN_PROGRESS", reloaded.Status)
	}
	if reloaded.StartedAt == nil {
		t.Fatal("full battle has no started_at")
	}

	var seatCount int64
	if err := db.Model(&models.Participant{}).Where("battle_id = ?", battle.ID).Count(&seatCount).Error; err != nil {
		t.Fatal(err)
	}
	if seatCount != 4 {
		t.Fatalf("battle has %d seats, want 4", seatCount)
	}

	// Rejected contenders were never charged. Cost per seat is 100 + 2*50.
	for i, err := range results {
		balance, berr := wallets.GetBalance(users[i])
		if berr != nil {
			t.Fatal(berr)
		}
		want := int64(1000)
		if err == nil {
			want = 1000 - battle.TotalCostPerSeat()
		}
		if balance != want {
			t.Fatalf("contender %d balance = %d, want %d", i, balance, want)
		}
	}
}

func TestJoinRejectsInsufficientFundsAndDuplicates(t *testing.T) {
	db := testDB(t)
	wallets := NewWalletService(db)
	battles := NewBattleService(db, wallets)
	box := seedBox(t, db, 50)

	creator := fundUser(t, db, wallets, 1000)
	battle, err := battles.CreateBattle(creator, BattleConfig{
		BoxID:           box.ID,
		Format:          models.BattleFormatSolo,
		Mode:            models.BattleModeNormal,
		MaxParticipants: 3,
		EntryFee:        100,
		Rounds:          2,
	})
	if err != nil {
		t.Fatalf("failed to create battle: %v", err)
	}

	// Seat costs 200; 150 is not enough.
	poor := fundUser(t, db, wallets, 150)
	if _, err := battles.JoinBattle(battle.ID, poor); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("underfunded join: got err %v, want ErrInsufficientFunds", err)
	}
	balance, err := wallets.GetBalance(poor)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 150 {
		t.Fatalf("failed join touched the balance: %d, want 150", balance)
	}

	if _, err := battles.JoinBattle(battle.ID, creator); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("duplicate join: got err %v, want ErrAlreadyJoined", err)
	}
}

func TestSettlementPaysOutExactlyOnce(t *testing.T) {
	db := testDB(t)
	wallets := NewWalletService(db)
	battles := NewBattleService(db, wallets)
	rounds := NewRoundService(db, NewCatalogService(db), NewSeededRNG(1))
	settlement := NewSettlementService(db, wallets)
	box := seedBox(t, db, 50)

	creator := fundUser(t, db, wallets, 1000)
	battle, err := battles.CreateBattle(creator, BattleConfig{
		BoxID:           box.ID,
		Format:          models.BattleFormatSolo,
		Mode:            models.BattleModeNormal,
		MaxParticipants: 2,
		EntryFee:        0,
		Rounds:          1,
	})
	if err != nil {
		t.Fatalf("failed to create battle: %v", err)
	}
	rival := fundUser(t, db, wallets, 1000)
	if _, err := battles.JoinBattle(battle.ID, rival); err != nil {
		t.Fatalf("rival join failed: %v", err)
	}

	var participants []models.Participant
	if err := db.Where("battle_id = ?", battle.ID).Find(&participants).Error; err != nil {
		t.Fatal(err)
	}
	for _, p := range participants {
		if _, err := rounds.ExecuteRound(battle.ID, p.ID); err != nil {
			t.Fatalf("round for %s failed: %v", p.ID, err)
		}
		// The single round is spent.
		if _, err := rounds.ExecuteRound(battle.ID, p.ID); !errors.Is(err, ErrRoundsExhausted) {
			t.Fatalf("extra round: got err %v, want ErrRoundsExhausted", err)
		}
	}

	const settlers = 5
	var wg sync.WaitGroup
	results := make([]error, settlers)
	for i := 0; i < settlers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = settlement.Settle(battle.ID)
		}(i)
	}
	wg.Wait()

	settled := 0
	for i, err := range results {
		switch {
		case err == nil:
			settled++
		case errors.Is(err, ErrAlreadySettled):
		default:
			t.Fatalf("settler %d: unexpected error %v", i, err)
		}
	}
	if settled != 1 {
		t.Fatalf("%d settlers succeeded, want exactly 1", settled)
	}

	var reloaded models.Battle
	if err := db.First(&reloaded, "id = ?", battle.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != models.BattleStatusFinished {
		t.Fatalf("battle status = %s, want FINISHED", reloaded.Status)
	}
	if reloaded.WinnerParticipantID == nil {
		t.Fatal("finished battle has no winner")
	}

	// The pot went out exactly once: one payout journal row for this battle.
	var payoutCount int64
	if err := db.Model(&models.CoinTransaction{}).
		Where("kind = ? AND reference = ?", models.CoinTxnBattlePayout, battle.ID).
		Count(&payoutCount).Error; err != nil {
		t.Fatal(err)
	}
	if payoutCount != 1 {
		t.Fatalf("%d payout journal rows, want 1", payoutCount)
	}
}

func TestPaymentEventCreditsExactlyOnce(t *testing.T) {
	db := testDB(t)
	wallets := NewWalletService(db)

	userID := uuid.NewString()
	eventID := uuid.NewString()

	const deliveries = 6
	var wg sync.WaitGroup
	applied := make([]bool, deliveries)
	results := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			applied[i], results[i] = wallets.ProcessPaymentEvent("stripe", eventID, userID, 500)
		}(i)
	}
	wg.Wait()

	creditCount := 0
	for i := 0; i < deliveries; i++ {
		if results[i] != nil {
			t.Fatalf("delivery %d: unexpected error %v", i, results[i])
		}
		if applied[i] {
			creditCount++
		}
	}
	if creditCount != 1 {
		t.Fatalf("%d deliveries credited, want exactly 1", creditCount)
	}

	balance, err := wallets.GetBalance(userID)
	if err != nil {
		t.Fatal(err)
	}
	if balance != 500 {
		t.Fatalf("balance = %d after replayed deliveries, want 500", balance)
	}
}
