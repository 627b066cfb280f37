package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"meshhub/internal/protocol"
	"meshhub/pkg/meshclient"
)

var (
	objPath       string
	sendCube      bool
	appendNormals bool
	dialTimeout   time.Duration
)

// sendCmd sends one mesh
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a mesh to the receiver",
	Long: `Send one mesh to the receiver. Each send opens a new connection, writes a
single message and closes; the receiver does not reply.

Examples:
  mesh-sender send --cube
  mesh-sender send --obj suzanne.obj --append-normals`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, source, err := loadPayload()
		if err != nil {
			return err
		}
		if err := payload.ValidateIndices(); err != nil {
			return fmt.Errorf("mesh is not sendable: %w", err)
		}

		fmt.Printf("▣ Sending '%s' to %s...\n", source, serverAddr)
		n, err := meshclient.Send(cmd.Context(), serverAddr, payload, meshclient.Options{
			DialTimeout:   dialTimeout,
			AppendNormals: appendNormals,
		})
		if err != nil {
			return err
		}
		fmt.Printf("▣ Success! Sent %d bytes (%d vertices, %d triangles).\n",
			n, payload.VertexCount(), payload.TriangleCount())
		return nil
	},
}

func loadPayload() (*protocol.MeshPayload, string, error) {
	switch {
	case sendCube && objPath != "":
		return nil, "", errors.New("use either --obj or --cube, not both")
	case sendCube:
		return meshclient.Cube(), "cube", nil
	case objPath != "":
		p, err := meshclient.LoadOBJ(objPath)
		return p, objPath, err
	default:
		return nil, "", errors.New("nothing to send, pass --obj <file> or --cube")
	}
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&objPath, "obj", "", "Wavefront OBJ file to send")
	sendCmd.Flags().BoolVar(&sendCube, "cube", false, "send a unit cube")
	sendCmd.Flags().BoolVar(&appendNormals, "append-normals", false, "trail the body with per-vertex normals")
	sendCmd.Flags().DurationVar(&dialTimeout, "timeout", 5*time.Second, "connect timeout")
}
