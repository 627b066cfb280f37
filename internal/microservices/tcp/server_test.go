package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"meshhub/internal/protocol"
	"meshhub/internal/scene"
)

// MeshServerTestSuite drives a real loopback listener
type MeshServerTestSuite struct {
	suite.Suite
	server  *MeshServer
	applier *recordingApplier
}

func (s *MeshServerTestSuite) SetupTest() {
	s.applier = &recordingApplier{}
	s.server = NewServer(s.applier, ServerOptions{
		Addr:         "127.0.0.1:0",
		PollInterval: 10 * time.Millisecond,
		AcceptWait:   5 * time.Millisecond,
		Handler:      DefaultHandlerOptions,
	})
	s.Require().NoError(s.server.Open())
}

func (s *MeshServerTestSuite) TearDownTest() {
	s.NoError(s.server.Close())
}

// dialAndSend connects, writes msg and closes the write side
func (s *MeshServerTestSuite) dialAndSend(msg []byte) net.Conn {
	conn, err := net.DialTimeout("tcp", s.server.Addr().String(), time.Second)
	s.Require().NoError(err)
	_, err = conn.Write(msg)
	s.Require().NoError(err)
	s.T().Cleanup(func() { conn.Close() })
	return conn
}

func (s *MeshServerTestSuite) message() []byte {
	msg, err := protocol.EncodeMessage(triangle(), nil)
	s.Require().NoError(err)
	return msg
}

func (s *MeshServerTestSuite) TestPoll_NothingPending() {
	start := time.Now()
	s.False(s.server.Poll(context.Background()))
	s.Less(time.Since(start), time.Second)
	s.Zero(s.applier.count())
}

func (s *MeshServerTestSuite) TestPoll_NotOpenIsNoop() {
	closed := NewServer(s.applier, ServerOptions{Addr: "127.0.0.1:0"})
	s.False(closed.Listening())
	s.Nil(closed.Addr())
	s.False(closed.Poll(context.Background()))
}

func (s *MeshServerTestSuite) TestPoll_OneConnectionPerPoll() {
	s.dialAndSend(s.message())
	s.dialAndSend(s.message())

	s.True(s.server.Poll(context.Background()))
	s.Equal(1, s.applier.count())

	s.True(s.server.Poll(context.Background()))
	s.Equal(2, s.applier.count())

	s.False(s.server.Poll(context.Background()))
}

func (s *MeshServerTestSuite) TestPoll_BadMessageDoesNotStopServer() {
	s.dialAndSend(rawHeader(0x12345678, 0, 0))
	s.True(s.server.Poll(context.Background()))
	s.Zero(s.applier.count())

	s.dialAndSend(s.message())
	s.True(s.server.Poll(context.Background()))
	s.Equal(1, s.applier.count())
	s.True(s.server.Listening())
}

// A sender that stalls mid-message holds the poll loop until the read
// timeout fires; the next sender waits in the backlog meanwhile.
func (s *MeshServerTestSuite) TestPoll_StalledSenderBlocksLoop() {
	s.server.opts.Handler.ReadTimeout = 100 * time.Millisecond

	s.dialAndSend(rawHeader(protocol.Magic, 9, 3)) // header only, then silence
	s.dialAndSend(s.message())

	start := time.Now()
	s.True(s.server.Poll(context.Background()))
	s.GreaterOrEqual(time.Since(start), 100*time.Millisecond)
	s.Zero(s.applier.count())

	s.True(s.server.Poll(context.Background()))
	s.Equal(1, s.applier.count())
}

func (s *MeshServerTestSuite) TestRun_AppliesMessages() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.server.Run(ctx) }()

	s.dialAndSend(s.message())
	s.dialAndSend(s.message())
	s.Eventually(func() bool { return s.applier.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(2 * time.Second):
		s.Fail("Run did not stop after cancel")
	}
}

func (s *MeshServerTestSuite) TestRun_RequiresOpenSocket() {
	idle := NewServer(s.applier, ServerOptions{Addr: "127.0.0.1:0"})
	s.ErrorIs(idle.Run(context.Background()), ErrNotOpen)
}

func (s *MeshServerTestSuite) TestOpenTwiceFails() {
	s.Error(s.server.Open())
}

func (s *MeshServerTestSuite) TestCloseIsIdempotent() {
	s.NoError(s.server.Close())
	s.NoError(s.server.Close())
	s.False(s.server.Listening())
	s.False(s.server.Poll(context.Background()))
}

func (s *MeshServerTestSuite) TestEndToEnd_SceneSync() {
	sc := scene.NewScene(0, nil)
	s.server.applier = scene.NewMeshSync(sc, scene.SyncOptions{})

	s.dialAndSend(s.message())
	s.True(s.server.Poll(context.Background()))

	e, ok := sc.EntityByTag("BlenderTarget")
	s.Require().True(ok)
	s.Require().NotNil(e.Mesh)
	s.Equal(triangle().Positions, e.Mesh.Positions)
	s.Equal([]uint32{0, 1, 2}, e.Mesh.Indices)
	s.Equal(scene.DefaultMaterialName, e.Mesh.Material)

	// a second message replaces the buffers of the same entity
	s.dialAndSend(rawHeader(protocol.Magic, 0, 0))
	s.True(s.server.Poll(context.Background()))
	s.Equal(1, sc.CountTagged("BlenderTarget"))
	e, _ = sc.EntityByTag("BlenderTarget")
	s.Empty(e.Mesh.Positions)
}

func TestMeshServerTestSuite(t *testing.T) {
	suite.Run(t, new(MeshServerTestSuite))
}
