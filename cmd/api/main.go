package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/annalist/annalist-backend/internal/config"
	"github.com/annalist/annalist-backend/internal/domain"
	"github.com/annalist/annalist-backend/internal/handler"
	"github.com/annalist/annalist-backend/internal/middleware"
	"github.com/annalist/annalist-backend/internal/migration"
	"github.com/annalist/annalist-backend/internal/repository"
	"github.com/annalist/annalist-backend/internal/routes"
	"github.com/annalist/annalist-backend/internal/service"
	pkgcache "github.com/annalist/annalist-backend/pkg/cache"
	pkgjwt "github.com/annalist/annalist-backend/pkg/jwt"
	pkglogger "github.com/annalist/annalist-backend/pkg/logger"
	pkgredis "github.com/annalist/annalist-backend/pkg/redis"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.InitStructured(env)
	zlog := pkglogger.GetLogger()
	zlog.Info().Str("env", env).Strs("dotenv", dotenvFiles).Msg("starting annalist-backend")

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := initDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := migration.Run(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	zlog.Info().Msg("connected to MySQL")

	// Redis is optional; without it document reads skip the cache.
	var cacheService pkgcache.Service
	redisClient, err := pkgredis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Redis.PoolSize,
	)
	if err != nil {
		zlog.Warn().Err(err).Msg("Redis unavailable, continuing without cache")
	} else {
		cacheService = pkgcache.NewService(redisClient)
		zlog.Info().Msg("connected to Redis")
	}

	jwtManager := pkgjwt.NewManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.ExpiresIn)*time.Second)

	versionRepo := repository.NewVersionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)

	versionService := service.NewVersionService(versionRepo)
	policyService := service.NewPolicyService(versionService)
	revertService := service.NewRevertService(versionService)

	// Per-type policies come from config and are fatal when malformed.
	registerPolicies(cfg, policyService)

	documentService := service.NewDocumentService(documentRepo, policyService, versionService, revertService, cacheService)

	documentHandler := handler.NewDocumentHandler(documentService)
	versionHandler := handler.NewVersionHandler(documentService, versionService)

	if env != "local" && env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	allowOrigins := cfg.CORS.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "http://localhost:3000"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{allowOrigins},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.Setup(router, jwtManager, documentHandler, versionHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	zlog.Info().Str("addr", addr).Msg("listening")
	if err := router.Run(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func initDB(cfg *config.Config) (*gorm.DB, error) {
	dsnCfg := mysqldriver.NewConfig()
	dsnCfg.User = cfg.Database.User
	dsnCfg.Passwd = cfg.Database.Password
	dsnCfg.Net = "tcp"
	dsnCfg.Addr = fmt.Sprintf("%s:%d", cfg.Database.Host, cfg.Database.Port)
	dsnCfg.DBName = cfg.Database.Name
	dsnCfg.ParseTime = true
	dsnCfg.Loc = time.UTC
	dsnCfg.Params = map[string]string{"charset": "utf8mb4"}

	return gorm.Open(mysql.Open(dsnCfg.FormatDSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		// Map driver duplicate-key errors to gorm.ErrDuplicatedKey for
		// the numbering-conflict retry path.
		TranslateError: true,
	})
}

// registerPolicies installs versioning policies from the config file.
// The document type always gets a policy; config may override it or add
// policies for further record types.
func registerPolicies(cfg *config.Config, policy service.PolicyService) {
	types := cfg.Versioning
	if types == nil {
		types = map[string]map[string]any{}
	}
	if _, ok := types[domain.OwnerTypeDocument]; !ok {
		types[domain.OwnerTypeDocument] = map[string]any{
			domain.OptionKeep:      10,
			domain.OptionAutomatic: true,
		}
	}

	for ownerType, opts := range types {
		if _, err := policy.Register(ownerType, opts); err != nil {
			log.Fatalf("Invalid versioning policy for %s: %v", ownerType, err)
		}
	}
}
