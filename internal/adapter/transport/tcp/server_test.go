package tcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dayanaadylkhanova/wisdom-pow/internal/adapter/transport/frame"
	"github.com/dayanaadylkhanova/wisdom-pow/internal/entity"
)

func loggerSilent() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustPipe(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	c1, c2 := net.Pipe()
	// дедлайны, чтобы не повиснуть при падении теста
	_ = c1.SetDeadline(time.Now().Add(2 * time.Second))
	_ = c2.SetDeadline(time.Now().Add(2 * time.Second))
	return c1, c2
}

func testPuzzle(complexity uint8) entity.Puzzle {
	return entity.Puzzle{Complexity: complexity, Value: [16]byte{0xca, 0xfe, 0xba, 0xbe}}
}

func testOptions() Options {
	return Options{Addr: "127.0.0.1:0", SolutionTimeout: time.Minute, ShutdownWait: 200 * time.Millisecond}
}

func TestHandle_OK(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPow := NewMockPoW(ctrl)
	mockQuote := NewMockQuote(ctrl)

	p := testPuzzle(10)
	sol := entity.Solution{1, 2, 3}
	mockPow.EXPECT().NewPuzzle(uint8(10)).Return(p, nil)
	mockPow.EXPECT().Verify(p, sol).Return(true)
	mockQuote.EXPECT().Random().Return("hello, world")

	srv := NewServer(loggerSilent(), testOptions(), mockPow, mockQuote)

	cli, srvSide := mustPipe(t)
	defer cli.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.handle(srvSide, 10)
	}()

	tr := frame.New(cli)

	// 1) читаем puzzle
	var got entity.Puzzle
	require.NoError(t, tr.Receive(&got, entity.PuzzleSize))
	require.Equal(t, p, got)

	// 2) отправляем решение (валидность проверит мок Verify)
	require.NoError(t, tr.Send(sol))

	// 3) verdict + цитата
	var st entity.SolutionState
	require.NoError(t, tr.Receive(&st, entity.SolutionStateSize))
	require.Equal(t, entity.Accepted, st)

	var size entity.PayloadSize
	require.NoError(t, tr.Receive(&size, entity.PayloadSizeSize))
	var text entity.Response
	require.NoError(t, tr.Receive(&text, int(size)))
	require.Equal(t, entity.Response("hello, world"), text)

	// соединение закрыто сервером
	var extra [1]byte
	_, err := cli.Read(extra[:])
	require.ErrorIs(t, err, io.EOF)

	<-done
	stats := srv.Stats()
	require.Equal(t, uint64(1), stats.Issued)
	require.Equal(t, uint64(1), stats.Accepted)
	require.Zero(t, stats.Active)
}

func TestHandle_Rejected_NoPayload(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPow := NewMockPoW(ctrl)
	mockQuote := NewMockQuote(ctrl)

	p := testPuzzle(30)
	mockPow.EXPECT().NewPuzzle(uint8(30)).Return(p, nil)
	mockPow.EXPECT().Verify(p, entity.Solution{}).Return(false)
	// Quote не должен вызываться

	srv := NewServer(loggerSilent(), testOptions(), mockPow, mockQuote)

	cli, srvSide := mustPipe(t)
	defer cli.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.handle(srvSide, 30)
	}()

	tr := frame.New(cli)
	var got entity.Puzzle
	require.NoError(t, tr.Receive(&got, entity.PuzzleSize))
	require.NoError(t, tr.Send(entity.Solution{}))

	var st entity.SolutionState
	require.NoError(t, tr.Receive(&st, entity.SolutionStateSize))
	require.Equal(t, entity.Rejected, st)

	var extra [1]byte
	_, err := cli.Read(extra[:])
	require.ErrorIs(t, err, io.EOF)

	<-done
	require.Equal(t, uint64(1), srv.Stats().Rejected)
}

func TestHandle_ShortSolution_FailsOnlyThatConnection(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPow := NewMockPoW(ctrl)
	mockQuote := NewMockQuote(ctrl)

	mockPow.EXPECT().NewPuzzle(gomock.Any()).Return(testPuzzle(3), nil)
	// Verify не вызывается: решение не дочитано

	srv := NewServer(loggerSilent(), testOptions(), mockPow, mockQuote)

	cli, srvSide := mustPipe(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.handle(srvSide, 3)
	}()

	var got entity.Puzzle
	require.NoError(t, frame.New(cli).Receive(&got, entity.PuzzleSize))
	_, err := cli.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, cli.Close())

	<-done
	require.Equal(t, uint64(1), srv.Stats().Failed)
}

func TestHandle_PuzzleError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPow := NewMockPoW(ctrl)
	mockPow.EXPECT().NewPuzzle(gomock.Any()).Return(entity.Puzzle{}, errors.New("entropy exhausted"))

	srv := NewServer(loggerSilent(), testOptions(), mockPow, NewMockQuote(ctrl))

	cli, srvSide := mustPipe(t)
	defer cli.Close()

	go srv.handle(srvSide, 3)

	var extra [1]byte
	_, err := cli.Read(extra[:])
	require.ErrorIs(t, err, io.EOF)
}

func TestHandle_SilentClientTimesOut(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPow := NewMockPoW(ctrl)
	mockPow.EXPECT().NewPuzzle(gomock.Any()).Return(testPuzzle(3), nil)

	opts := testOptions()
	opts.SolutionTimeout = 100 * time.Millisecond
	srv := NewServer(loggerSilent(), opts, mockPow, NewMockQuote(ctrl))

	cli, srvSide := mustPipe(t)
	defer cli.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.handle(srvSide, 3)
	}()

	var got entity.Puzzle
	require.NoError(t, frame.New(cli).Receive(&got, entity.PuzzleSize))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not give up on a silent client")
	}
	require.Equal(t, uint64(1), srv.Stats().Failed)
}

func TestHandle_ParallelMany(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPow := NewMockPoW(ctrl)
	mockQuote := NewMockQuote(ctrl)

	const N = 10

	p := testPuzzle(1)
	mockPow.EXPECT().NewPuzzle(uint8(1)).Times(N).Return(p, nil)
	mockPow.EXPECT().Verify(p, gomock.Any()).Times(N).Return(true)
	mockQuote.EXPECT().Random().Times(N).Return("ok")

	srv := NewServer(loggerSilent(), testOptions(), mockPow, mockQuote)

	var wg sync.WaitGroup
	wg.Add(N)

	for i := 0; i < N; i++ {
		cli, srvSide := mustPipe(t)

		go func(c1, c2 net.Conn) {
			defer wg.Done()
			defer c1.Close()

			// серверная сторона
			go srv.handle(c2, 1)

			// клиентская сторона
			tr := frame.New(c1)
			var got entity.Puzzle
			if err := tr.Receive(&got, entity.PuzzleSize); err != nil {
				t.Errorf("read puzzle: %v", err)
				return
			}
			if err := tr.Send(entity.Solution{}); err != nil {
				t.Errorf("write solution: %v", err)
				return
			}
			var st entity.SolutionState
			if err := tr.Receive(&st, entity.SolutionStateSize); err != nil || st != entity.Accepted {
				t.Errorf("verdict = %v, err = %v", st, err)
				return
			}
			var size entity.PayloadSize
			var text entity.Response
			if err := tr.Receive(&size, entity.PayloadSizeSize); err != nil {
				t.Errorf("read size: %v", err)
				return
			}
			if err := tr.Receive(&text, int(size)); err != nil {
				t.Errorf("read quote: %v", err)
			} else if text != "ok" {
				t.Errorf("quote = %q; want %q", text, "ok")
			}
		}(cli, srvSide)
	}

	wg.Wait()
}

func startServer(t *testing.T, srv *Server, complexity uint8) (string, context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx, complexity) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("server did not start listening")
	}
	return srv.Addr().String(), cancel, errCh
}

func dial(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRun_GracefulShutdown(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPow := NewMockPoW(ctrl)
	mockPow.EXPECT().NewPuzzle(gomock.Any()).AnyTimes().Return(testPuzzle(1), nil)

	srv := NewServer(loggerSilent(), testOptions(), mockPow, NewMockQuote(ctrl))
	addr, cancel, errCh := startServer(t, srv, 1)
	defer cancel()

	conn := dial(t, addr)

	// читаем puzzle и молчим
	var got entity.Puzzle
	require.NoError(t, frame.New(conn).Receive(&got, entity.PuzzleSize))

	// триггернем shutdown
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestRun_MaxConnsDefersAdmission(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPow := NewMockPoW(ctrl)
	mockPow.EXPECT().NewPuzzle(gomock.Any()).AnyTimes().Return(testPuzzle(1), nil)
	mockPow.EXPECT().Verify(gomock.Any(), gomock.Any()).AnyTimes().Return(false)

	opts := testOptions()
	opts.MaxConns = 1
	srv := NewServer(loggerSilent(), opts, mockPow, NewMockQuote(ctrl))
	addr, cancel, _ := startServer(t, srv, 1)
	defer cancel()

	first := frame.New(dial(t, addr))
	var got entity.Puzzle
	require.NoError(t, first.Receive(&got, entity.PuzzleSize))

	secondConn := dial(t, addr)
	_ = secondConn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var one [1]byte
	_, err := secondConn.Read(one[:])
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	require.True(t, ne.Timeout(), "second connection must wait for a free slot")

	// освобождаем слот
	require.NoError(t, first.Send(entity.Solution{}))
	var st entity.SolutionState
	require.NoError(t, first.Receive(&st, entity.SolutionStateSize))

	_ = secondConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, frame.New(secondConn).Receive(&got, entity.PuzzleSize))
}

func TestRun_AcceptRateDropsExcess(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPow := NewMockPoW(ctrl)
	mockPow.EXPECT().NewPuzzle(gomock.Any()).Times(1).Return(testPuzzle(1), nil)

	opts := testOptions()
	opts.AcceptRate = 0.001
	opts.AcceptBurst = 1
	srv := NewServer(loggerSilent(), opts, mockPow, NewMockQuote(ctrl))
	addr, cancel, _ := startServer(t, srv, 1)
	defer cancel()

	var got entity.Puzzle
	require.NoError(t, frame.New(dial(t, addr)).Receive(&got, entity.PuzzleSize))

	err := frame.New(dial(t, addr)).Receive(&got, entity.PuzzleSize)
	require.Error(t, err)
}
