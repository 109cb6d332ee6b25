// Package engine drives a UCI chess engine binary for two jobs: picking
// replies for the built-in opponent tiers and scoring positions for
// post-game analysis.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/capricechess/caprice/internal/domain"
)

const (
	handshakeTimeout = 4 * time.Second
	mateValue        = 30000
)

// tierSettings tunes the engine per opponent tier.
type tierSettings struct {
	skill      int
	elo        int
	moveTimeMS int
}

var tiers = map[domain.EngineTier]tierSettings{
	domain.TierEasy:   {skill: 2, elo: 900, moveTimeMS: 300},
	domain.TierNormal: {skill: 8, elo: 1400, moveTimeMS: 500},
	domain.TierHard:   {skill: 16, elo: 1800, moveTimeMS: 800},
}

// Score is an engine evaluation from the side to move's perspective.
type Score struct {
	CP       int
	Mate     int
	BestMove string
}

type Engine struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	mu     sync.Mutex // guards stdin writes
	search sync.Mutex // one search at a time
}

func New(ctx context.Context, binaryPath string) (*Engine, error) {
	if strings.TrimSpace(binaryPath) == "" {
		return nil, fmt.Errorf("engine binary path is empty")
	}
	cmd := exec.CommandContext(ctx, binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	e := &Engine{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdoutPipe)}
	if err := e.handshake(ctx); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) handshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := e.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := e.awaitToken(hctx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	if err := e.send("setoption name Threads value 1\nsetoption name Hash value 64\n"); err != nil {
		return fmt.Errorf("apply options: %w", err)
	}
	return e.ready(hctx)
}

func (e *Engine) ready(ctx context.Context) error {
	if err := e.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := e.awaitToken(ctx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// BestMove asks the engine for a reply in the given position, tuned to the
// opponent tier.
func (e *Engine) BestMove(ctx context.Context, fen string, tier domain.EngineTier) (string, error) {
	settings, ok := tiers[tier]
	if !ok {
		return "", fmt.Errorf("unknown engine tier %q", tier)
	}
	e.search.Lock()
	defer e.search.Unlock()

	opts := fmt.Sprintf(
		"setoption name Skill Level value %d\nsetoption name UCI_LimitStrength value true\nsetoption name UCI_Elo value %d\n",
		settings.skill, settings.elo)
	if err := e.send(opts); err != nil {
		return "", fmt.Errorf("apply tier options: %w", err)
	}
	score, err := e.run(ctx, fen, fmt.Sprintf("go movetime %d", settings.moveTimeMS), time.Duration(settings.moveTimeMS)*time.Millisecond*3+2*time.Second)
	if err != nil {
		return "", err
	}
	if score.BestMove == "" || score.BestMove == "(none)" {
		return "", fmt.Errorf("engine returned no move")
	}
	return score.BestMove, nil
}

// Evaluate scores a position at fixed depth.
func (e *Engine) Evaluate(ctx context.Context, fen string, depth int) (Score, error) {
	if depth <= 0 {
		depth = 12
	}
	e.search.Lock()
	defer e.search.Unlock()

	timeout := time.Duration(depth)*time.Second/2 + 5*time.Second
	return e.run(ctx, fen, "go depth "+strconv.Itoa(depth), timeout)
}

func (e *Engine) run(ctx context.Context, fen, goCmd string, timeout time.Duration) (Score, error) {
	pos := "position startpos\n"
	if fen != "" && fen != "startpos" {
		pos = "position fen " + fen + "\n"
	}
	if err := e.send(pos); err != nil {
		return Score{}, fmt.Errorf("send position: %w", err)
	}
	if err := e.send(goCmd + "\n"); err != nil {
		return Score{}, fmt.Errorf("send go: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var score Score
	for {
		line, err := e.readLine(sctx)
		if err != nil {
			return Score{}, fmt.Errorf("read line: %w", err)
		}
		switch {
		case strings.HasPrefix(line, "info "):
			parseInfoScore(line, &score)
		case strings.HasPrefix(line, "bestmove"):
			parts := strings.Fields(line)
			if len(parts) >= 2 {
				score.BestMove = parts[1]
			}
			return score, nil
		}
	}
}

func parseInfoScore(line string, out *Score) {
	parts := strings.Fields(line)
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] != "score" {
			continue
		}
		switch parts[i+1] {
		case "cp":
			if v, err := strconv.Atoi(parts[i+2]); err == nil {
				out.CP = v
				out.Mate = 0
			}
		case "mate":
			if v, err := strconv.Atoi(parts[i+2]); err == nil {
				out.Mate = v
				if v >= 0 {
					out.CP = mateValue
				} else {
					out.CP = -mateValue
				}
			}
		}
		return
	}
}

func (e *Engine) send(msg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := io.WriteString(e.stdin, msg)
	return err
}

func (e *Engine) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := e.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (e *Engine) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := e.stdout.ReadString('\n')
		ch <- result{line: strings.TrimSpace(line), err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stdin != nil {
		e.stdin.Close()
	}
	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	if e.cmd != nil {
		return e.cmd.Wait()
	}
	return nil
}
