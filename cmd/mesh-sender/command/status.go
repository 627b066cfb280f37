package command

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"meshhub/internal/microservices/http-api/dto"
)

// statusCmd asks the receiver what it holds
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the receiver's current mesh",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		out := cmd.OutOrStdout()

		var health dto.HealthResponse
		if _, err := getJSON(client, apiURL+"/health", &health); err != nil {
			return err
		}
		fmt.Fprintf(out, "Receiver: %s (listening: %t)\n", health.Status, health.Listening)

		var target dto.TargetResponse
		code, err := getJSON(client, apiURL+"/api/v1/target", &target)
		if code == http.StatusNotFound {
			fmt.Fprintln(out, "No mesh received yet.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Target:   %s (%s)\n", target.Tag, target.EntityID)
		fmt.Fprintf(out, "Mesh:     %d vertices, %d triangles, revision %d\n",
			target.VertexCount, target.TriangleCount, target.Revision)
		fmt.Fprintf(out, "Material: %s\n", target.Material)
		fmt.Fprintf(out, "Bounds:   (%g, %g, %g) - (%g, %g, %g)\n",
			target.Min.X, target.Min.Y, target.Min.Z, target.Max.X, target.Max.Y, target.Max.Z)
		return nil
	},
}

func getJSON(client *http.Client, url string, out any) (int, error) {
	resp, err := client.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to reach receiver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
