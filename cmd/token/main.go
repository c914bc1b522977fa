// Command token creates a user and prints an API token for it. It is the way
// to bootstrap the first moderator, since creating users over HTTP requires one.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"companion-api/internal/config"
	"companion-api/internal/models"
	"companion-api/internal/repository"
	"companion-api/internal/services"
	"companion-api/pkg/database"
	"companion-api/pkg/jwt"
)

func main() {
	twitchID := flag.Int64("twitch", 0, "Twitch account id")
	discordID := flag.Int64("discord", 0, "Discord account id")
	moderator := flag.Bool("moderator", false, "grant the moderator scope")
	flag.Parse()

	if err := run(*twitchID, *discordID, *moderator); err != nil {
		slog.Error("failed to create token", "error", err)
		os.Exit(1)
	}
}

func run(twitchID, discordID int64, moderator bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer database.Disconnect(db.Client())

	users := services.NewUserService(repository.NewUserRepository(db), jwt.NewJWTUtil(cfg.JWT.Secret, cfg.JWT.Expiry))
	resp, err := users.CreateUser(ctx, &models.CreateUserRequest{
		TwitchID:  twitchID,
		DiscordID: discordID,
		Moderator: moderator,
	})
	if err != nil {
		return err
	}

	fmt.Printf("uid:   %d\ntoken: %s\n", resp.User.ID, resp.Token)
	return nil
}
