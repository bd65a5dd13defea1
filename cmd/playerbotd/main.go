package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l1jgo/playerbot/internal/config"
	"github.com/l1jgo/playerbot/internal/core/event"
	coresys "github.com/l1jgo/playerbot/internal/core/system"
	"github.com/l1jgo/playerbot/internal/data"
	gonet "github.com/l1jgo/playerbot/internal/net"
	"github.com/l1jgo/playerbot/internal/net/packet"
	"github.com/l1jgo/playerbot/internal/persist"
	"github.com/l1jgo/playerbot/internal/scripting"
	"github.com/l1jgo/playerbot/internal/service"
	"github.com/l1jgo/playerbot/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m          PlayerBot-Whale  v0.1.0          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      伺服器端機器人 · Go 自動化模組       \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(編號: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	// Use rune count for CJK width calculation (each CJK char = 2 columns)
	displayWidth := 0
	for _, r := range title {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	lineLen := 46 - displayWidth - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	displayWidth := 0
	for _, r := range label {
		if r > 0x7F {
			displayWidth += 2
		} else {
			displayWidth++
		}
	}
	dotsLen := 42 - displayWidth - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main daemon logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("PLAYERBOT_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Connect to PostgreSQL and run migrations
	printSection("資料庫")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL 連線成功")

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("資料庫遷移完成")
	fmt.Println()

	// 4. Repositories
	accountRepo := persist.NewAccountRepo(db)
	charRepo := persist.NewCharacterRepo(db)

	// 5. Load static data
	printSection("資料載入")

	classTable, err := data.LoadClassTable(cfg.Bots.DataDir + "/class_list.yaml")
	if err != nil {
		return fmt.Errorf("load class table: %w", err)
	}
	printStat("職業模板", classTable.Count())

	namePool, err := data.LoadNamePool(cfg.Bots.DataDir + "/name_list.yaml")
	if err != nil {
		return fmt.Errorf("load name pool: %w", err)
	}
	printStat("機器人名稱", namePool.Remaining())

	spawnPoints, err := data.LoadSpawnPoints(cfg.Bots.DataDir + "/spawn_list.yaml")
	if err != nil {
		return fmt.Errorf("load spawn list: %w", err)
	}
	printStat("出生點", len(spawnPoints))

	questTable, err := data.LoadQuestTable(cfg.Bots.DataDir + "/quest_list.yaml")
	if err != nil {
		return fmt.Errorf("load quest table: %w", err)
	}
	printStat("任務模板", questTable.Count())

	luaEngine, err := scripting.NewEngine(cfg.Bots.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer luaEngine.Close()
	printOK("Lua 腳本載入完成")
	fmt.Println()

	// 6. World state, event bus and packet registry
	worldState := world.NewState(log)
	bus := event.NewBus()
	pktReg := packet.NewRegistry(log)
	gonet.RegisterBotHandlers(pktReg, worldState, bus, log)

	holder := persist.NewHolderFromRepo(charRepo, log)

	// 7. Bot service, worker pool, world-thread systems
	pool := service.NewWorkerPool(cfg.Bots.Workers, cfg.Bots.WorkerInterval, log)
	svc := service.NewBotService(service.Services{
		World:      worldState,
		Bus:        bus,
		Registry:   pktReg,
		Holder:     holder,
		Characters: charRepo,
		Accounts:   accountRepo,
		Engine:     luaEngine,
		Classes:    classTable,
		Quests:     questTable,
		Spawns:     spawnPoints,
		Cfg:        cfg,
		Log:        log,
	}, pool)

	runner := coresys.NewRunner()
	service.RegisterAll(runner, svc, bus, 30*time.Second)

	// 8. Provision the fleet and start the login pipeline
	printSection("機器人")

	charIDs, err := ensureFleet(ctx, cfg, accountRepo, charRepo, classTable, namePool, spawnPoints)
	if err != nil {
		return fmt.Errorf("provision fleet: %w", err)
	}
	printStat("角色就緒", len(charIDs))

	accountRow, err := accountRepo.Load(ctx, botAccountName)
	if err != nil {
		return fmt.Errorf("load bot account: %w", err)
	}
	for _, id := range charIDs {
		if _, err := svc.SpawnBot(id, accountRow.ID); err != nil {
			log.Warn("機器人生成失敗", zap.Int64("char_id", id), zap.Error(err))
		}
	}
	printStat("登入中", svc.BotCount())
	fmt.Println()

	pool.Start()
	defer pool.Stop()

	// 9. World tick loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Server.TickRate)
	defer ticker.Stop()

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("世界迴圈啟動 (tick: %s)", cfg.Server.TickRate))
	printReady(fmt.Sprintf("工作執行緒 %d (interval: %s)", cfg.Bots.Workers, cfg.Bots.WorkerInterval))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Server.TickRate)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			svc.FlushDirty()
			log.Info("伺服器已停止")
			return nil
		}
	}
}

const botAccountName = "playerbot"

// ensureFleet makes sure the bot account and its characters exist, creating
// missing characters from the name pool up to the configured population.
func ensureFleet(
	ctx context.Context,
	cfg *config.Config,
	accounts *persist.AccountRepo,
	chars *persist.CharacterRepo,
	classes *data.ClassTable,
	names *data.NamePool,
	spawns []data.SpawnPoint,
) ([]int64, error) {
	acct, err := accounts.Load(ctx, botAccountName)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		acct, err = accounts.Create(ctx, botAccountName, randomPassword(), int16(cfg.Bots.Population))
		if err != nil {
			return nil, err
		}
	}

	existing, err := chars.LoadByAccount(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, cfg.Bots.Population)
	for _, c := range existing {
		ids = append(ids, c.ID)
	}

	for len(ids) < cfg.Bots.Population {
		classID := int32(1)
		level := int16(1)
		row := &persist.BotCharacterRow{
			AccountID: acct.ID,
			Name:      names.Take(),
			ClassID:   classID,
			Level:     level,
			HP:        classes.MaxHPFor(classID, level),
			MaxHP:     classes.MaxHPFor(classID, level),
			Alive:     true,
		}
		if sp := data.SpawnFor(spawns, level); sp != nil {
			row.X, row.Y, row.Z = sp.X, sp.Y, sp.Z
			row.MapID = sp.MapID
			row.Heading = sp.Heading
		}
		if err := chars.Create(ctx, row); err != nil {
			return nil, err
		}
		ids = append(ids, row.ID)
	}
	if len(ids) > cfg.Bots.Population {
		ids = ids[:cfg.Bots.Population]
	}
	return ids, nil
}

// randomPassword gives the bot account an unguessable throwaway credential;
// nothing logs in with it interactively.
func randomPassword() string {
	return fmt.Sprintf("bot-%d", time.Now().UnixNano())
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
