package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/atharve16/MediMate/internal/config"
	"github.com/atharve16/MediMate/internal/rendezvous"
	"github.com/atharve16/MediMate/internal/ui"
	"github.com/spf13/cobra"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List open rooms on the rendezvous service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{}, slog.LevelError)
		if err != nil {
			return err
		}

		stop := ui.RunConnectionSpinner("Fetching rooms...")
		rooms, err := fetchRooms(cmd.Context(), cfg.HTTPBaseURL())
		stop()
		if err != nil {
			return err
		}
		ui.RenderRooms(os.Stdout, rooms)
		return nil
	},
}

func fetchRooms(ctx context.Context, base string) ([]rendezvous.RoomInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/rooms", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rooms: %s", resp.Status)
	}

	var rooms []rendezvous.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return rooms, nil
}

func init() {
	rootCmd.AddCommand(roomsCmd)
}
