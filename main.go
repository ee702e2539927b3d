package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"kiama-backend/internal/auth"
	"kiama-backend/internal/database"
	"kiama-backend/internal/directory"
	"kiama-backend/internal/emotes"
	"kiama-backend/internal/handlers"
	"kiama-backend/internal/hub"
	"kiama-backend/internal/keyValue"
	"kiama-backend/internal/media"
	"kiama-backend/internal/models"
	"kiama-backend/internal/pipeline"
	"kiama-backend/internal/plugin"
	"kiama-backend/internal/plugin/builtin"
	"kiama-backend/internal/snowflake"
)

func setupLogger(cfg *models.ConfigFile) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	if cfg.LogToFile {
		config.OutputPaths = []string{"app.log", "stdout"}
	} else {
		config.OutputPaths = []string{"stdout"}
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	config.Level = level

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func readConfigFile() (models.ConfigFile, error) {
	var cfg models.ConfigFile

	configFile, err := os.Open("config.json")
	if err != nil {
		return cfg, err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return cfg, err
	}

	err = json.Unmarshal(bytes, &cfg)
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setupRedis(address string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: "",
		DB:       0,
	})

	err := rdb.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}

func parsePluginPublicKey(encoded string) (ed25519.PublicKey, error) {
	if encoded == "" {
		return nil, nil
	}

	keyBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("plugin public key must be %d bytes, got %d", ed25519.PublicKeySize, len(keyBytes))
	}
	return ed25519.PublicKey(keyBytes), nil
}

func main() {
	fmt.Println("Reading config file...")
	cfg, err := readConfigFile()
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Setting up logger...")
	sugar, err := setupLogger(&cfg)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Connecting to database...")
	db, err := database.Setup(sugar, &cfg)
	if err != nil {
		sugar.Fatal(err)
	}

	var redisClient *redis.Client
	if !cfg.SelfContained {
		fmt.Println("Connecting to redis...")
		redisClient, err = setupRedis(cfg.RedisAddress)
		if err != nil {
			sugar.Fatal(err)
		}
	}
	keyValue.Setup(sugar, redisClient, cfg.SelfContained)

	err = snowflake.Setup(cfg.SnowflakeWorkerID)
	if err != nil {
		sugar.Fatal(err)
	}

	auth.Setup(cfg.JwtSecret, cfg.ServerPasswordHash)

	store, err := directory.New(sugar)
	if err != nil {
		sugar.Fatal(err)
	}

	if err := emotes.Setup(sugar, "./public/emotes"); err != nil {
		sugar.Fatal(err)
	}
	if err := media.Setup(sugar, db, "./public/media"); err != nil {
		sugar.Fatal(err)
	}

	pluginPublicKey, err := parsePluginPublicKey(cfg.PluginPublicKey)
	if err != nil {
		sugar.Fatal(err)
	}

	// the pipeline and the plugin manager reference each other, so the
	// manager's host funcs are bound through these indirections
	var pipe *pipeline.Pipeline

	plugins := plugin.New(sugar, plugin.HostFuncs{
		AddRoute: handlers.AddPluginRoute,
		SendMessage: func(pluginName string, msg models.Message) error {
			return pipe.SendFromPlugin(pluginName, msg)
		},
		ModifyMessage: func(pluginName string, messageID int64, patch plugin.MessagePatch) error {
			return pipe.ModifyFromPlugin(pluginName, messageID, patch)
		},
		DataDir: "./plugin-data",
	}, pluginPublicKey, func(event plugin.SecurityEvent) {
		database.RecordSecurityEvent(event.ID, event.PluginName, event.Reason, event.OccurredAt)
	})

	pipe = pipeline.New(sugar, store, plugins, hub.BroadcastMessage, hub.BroadcastMessageUpdate)
	hub.Setup(sugar, store, pipe)
	handlers.Setup(sugar, store, plugins, pipe)

	if err := plugins.Register(builtin.NewPollPlugin()); err != nil {
		sugar.Fatal(err)
	}
	if err := plugins.Register(builtin.NewMessageLoggerPlugin()); err != nil {
		sugar.Fatal(err)
	}

	pluginsDir := cfg.PluginsDir
	if pluginsDir == "" {
		pluginsDir = "./plugins"
	}
	if err := plugins.LoadDir(pluginsDir); err != nil {
		sugar.Fatal(err)
	}
	defer plugins.Cleanup()

	isHttps := (cfg.TlsCert != "" && cfg.TlsKey != "")

	var httpProtocol string
	if isHttps {
		httpProtocol = "https"
	} else {
		httpProtocol = "http"
	}

	fmt.Printf("Server is running on %s://%s:%s\n", httpProtocol, cfg.Address, cfg.Port)

	err = handlers.Serve(isHttps, &cfg, hub.HandleClient)
	if err != nil {
		sugar.Fatal(err)
	}
}
