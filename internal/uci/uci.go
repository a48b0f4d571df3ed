package uci

import (
	"bufio"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/corvidchess/corvid/internal/board"
	"github.com/corvidchess/corvid/internal/engine"
	"github.com/corvidchess/corvid/internal/store"
	"github.com/corvidchess/corvid/internal/tablebase"
)

// UCI implements the Universal Chess Interface protocol.
type UCI struct {
	engine   *engine.Engine
	position *board.Position

	// Position history for repetition detection, one Zobrist hash per ply
	// from the game's start, including the current position.
	positionHashes []uint64

	nnuePath string

	syzygyPath       string
	syzygyProbeDepth int
	cache            *store.Store

	moveOverhead time.Duration

	searching     bool
	searchDone    chan struct{}
	stopRequested atomic.Bool

	profileFile *os.File

	debug bool
}

// New creates a UCI protocol handler wrapping eng.
func New(eng *engine.Engine) *UCI {
	return &UCI{
		engine:           eng,
		position:         board.NewPosition(),
		syzygyProbeDepth: 1,
		moveOverhead:     30 * time.Millisecond,
	}
}

// Run reads commands from stdin until "quit" or EOF.
func (u *UCI) Run() {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "uci":
			u.handleUCI()
		case "isready":
			fmt.Println("readyok")
		case "ucinewgame":
			u.handleNewGame()
		case "position":
			u.handlePosition(args)
		case "go":
			u.handleGo(args)
		case "stop":
			u.handleStop()
		case "quit":
			u.handleQuit()
		case "setoption":
			u.handleSetOption(args)
		case "d":
			fmt.Println(u.position.String())
		case "perft":
			u.handlePerft(args)
		}
	}
}

func (u *UCI) handleUCI() {
	fmt.Println("id name Corvid")
	fmt.Println("id author Corvid Team")
	fmt.Println()
	fmt.Println("option name Hash type spin default 64 min 1 max 4096")
	fmt.Println("option name Threads type spin default 1 min 1 max 256")
	fmt.Println("option name MoveOverhead type spin default 30 min 0 max 5000")
	fmt.Println("option name EvalFile type string default <empty>")
	fmt.Println("option name SyzygyPath type string default <empty>")
	fmt.Println("option name SyzygyProbeDepth type spin default 1 min 1 max 100")
	fmt.Println("option name LichessTablebase type check default false")
	fmt.Println("uciok")
}

func (u *UCI) handleNewGame() {
	u.engine.Clear()
	u.position = board.NewPosition()
	u.positionHashes = []uint64{u.position.Hash}
}

// handlePosition parses:
//
//	position startpos [moves ...]
//	position fen <fen> [moves ...]
func (u *UCI) handlePosition(args []string) {
	if len(args) == 0 {
		return
	}

	u.positionHashes = nil
	var moveStart int

	switch args[0] {
	case "startpos":
		u.position = board.NewPosition()
		moveStart = len(args)
		for i, arg := range args {
			if arg == "moves" {
				moveStart = i + 1
				break
			}
		}
	case "fen":
		fenEnd := len(args)
		for i, arg := range args[1:] {
			if arg == "moves" {
				fenEnd = i + 1
				break
			}
		}
		pos, err := board.ParseFEN(strings.Join(args[1:fenEnd], " "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string invalid FEN: %v\n", err)
			return
		}
		u.position = pos
		moveStart = len(args)
		for i, arg := range args {
			if arg == "moves" {
				moveStart = i + 1
				break
			}
		}
	default:
		return
	}

	u.positionHashes = append(u.positionHashes, u.position.Hash)

	for _, moveStr := range args[moveStart:] {
		move, err := board.ParseMove(moveStr, u.position)
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string invalid move %s: %v\n", moveStr, err)
			return
		}
		u.position.MakeMove(move)
		u.positionHashes = append(u.positionHashes, u.position.Hash)
	}
}

// GoOptions holds parsed "go" command arguments.
type GoOptions struct {
	Depth     int
	Nodes     uint64
	MoveTime  time.Duration
	Infinite  bool
	WTime     time.Duration
	BTime     time.Duration
	WInc      time.Duration
	BInc      time.Duration
	MovesToGo int
}

func (u *UCI) handleGo(args []string) {
	opts := u.parseGoOptions(args)

	u.engine.SetPositionHistory(u.positionHashes)
	u.engine.OnInfo = u.sendInfo

	limits := engine.UCILimits{
		Time:      [2]time.Duration{opts.WTime, opts.BTime},
		Inc:       [2]time.Duration{opts.WInc, opts.BInc},
		MovesToGo: opts.MovesToGo,
		MoveTime:  opts.MoveTime,
		Depth:     opts.Depth,
		Nodes:     opts.Nodes,
		Infinite:  opts.Infinite,
	}
	if limits.MoveTime > u.moveOverhead {
		limits.MoveTime -= u.moveOverhead
	}

	ply := len(u.positionHashes) - 1
	if ply < 0 {
		ply = 0
	}

	u.searching = true
	u.stopRequested.Store(false)
	u.searchDone = make(chan struct{})

	pos := u.position.Copy()
	origin := u.position.Copy()

	go func() {
		defer close(u.searchDone)

		bestMove := u.engine.SearchWithUCILimits(pos, limits, ply)
		u.searching = false

		legal := board.NewMoveList()
		origin.GenerateLegalMoves(legal)

		if bestMove != board.NoMove && legal.Contains(bestMove) {
			fmt.Printf("bestmove %s\n", bestMove.String())
			return
		}

		if bestMove != board.NoMove {
			fmt.Fprintf(os.Stderr, "info string search returned illegal move %s\n", bestMove.String())
		}
		if legal.Len() > 0 {
			fmt.Printf("bestmove %s\n", legal.Get(0).String())
		} else {
			fmt.Println("bestmove 0000")
		}
	}()
}

func (u *UCI) parseGoOptions(args []string) GoOptions {
	var opts GoOptions

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "depth":
			if i+1 < len(args) {
				opts.Depth, _ = strconv.Atoi(args[i+1])
				i++
			}
		case "nodes":
			if i+1 < len(args) {
				n, _ := strconv.ParseUint(args[i+1], 10, 64)
				opts.Nodes = n
				i++
			}
		case "movetime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.MoveTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "infinite":
			opts.Infinite = true
		case "wtime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.WTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "btime":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.BTime = time.Duration(ms) * time.Millisecond
				i++
			}
		case "winc":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.WInc = time.Duration(ms) * time.Millisecond
				i++
			}
		case "binc":
			if i+1 < len(args) {
				ms, _ := strconv.Atoi(args[i+1])
				opts.BInc = time.Duration(ms) * time.Millisecond
				i++
			}
		case "movestogo":
			if i+1 < len(args) {
				opts.MovesToGo, _ = strconv.Atoi(args[i+1])
				i++
			}
		}
	}

	return opts
}

// sendInfo writes one UCI "info" line reporting search progress.
func (u *UCI) sendInfo(info engine.SearchInfo) {
	var parts []string

	parts = append(parts, fmt.Sprintf("depth %d", info.Depth))
	parts = append(parts, fmt.Sprintf("seldepth %d", len(info.PV)))

	switch {
	case info.Score > engine.MateScore-100:
		mateIn := (engine.MateScore - info.Score + 1) / 2
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	case info.Score < -engine.MateScore+100:
		mateIn := -(engine.MateScore + info.Score + 1) / 2
		parts = append(parts, fmt.Sprintf("score mate %d", mateIn))
	default:
		parts = append(parts, fmt.Sprintf("score cp %d", info.Score))
	}

	parts = append(parts, fmt.Sprintf("nodes %d", info.Nodes))
	parts = append(parts, fmt.Sprintf("time %d", info.Time.Milliseconds()))
	if info.Time > 0 {
		nps := uint64(float64(info.Nodes) / info.Time.Seconds())
		parts = append(parts, fmt.Sprintf("nps %d", nps))
	}
	if info.HashFull > 0 {
		parts = append(parts, fmt.Sprintf("hashfull %d", info.HashFull))
	}

	if len(info.PV) > 0 {
		validPV := make([]string, 0, len(info.PV))
		testPos := u.position.Copy()
		legal := board.NewMoveList()
		for _, move := range info.PV {
			legal.Clear()
			testPos.GenerateLegalMoves(legal)
			if !legal.Contains(move) {
				break
			}
			validPV = append(validPV, move.String())
			testPos.MakeMove(move)
		}
		if len(validPV) > 0 {
			parts = append(parts, "pv "+strings.Join(validPV, " "))
		}
	}

	fmt.Printf("info %s\n", strings.Join(parts, " "))
}

func (u *UCI) handleStop() {
	if u.searching {
		u.stopRequested.Store(true)
		u.engine.Stop()
		<-u.searchDone
	}
}

func (u *UCI) handleQuit() {
	u.handleStop()
	if u.profileFile != nil {
		pprof.StopCPUProfile()
		u.profileFile.Close()
		fmt.Fprintf(os.Stderr, "info string CPU profile saved\n")
	}
	if u.cache != nil {
		u.cache.Close()
	}
	os.Exit(0)
}

func (u *UCI) handleSetOption(args []string) {
	var name, value string
	readingName, readingValue := false, false

	for _, arg := range args {
		switch arg {
		case "name":
			readingName, readingValue = true, false
		case "value":
			readingName, readingValue = false, true
		default:
			if readingName {
				if name != "" {
					name += " "
				}
				name += arg
			} else if readingValue {
				if value != "" {
					value += " "
				}
				value += arg
			}
		}
	}

	switch strings.ToLower(name) {
	case "hash":
		// Accepted and ignored: the transposition table keeps the size it
		// was created with at startup.
	case "threads":
		// Worker count is fixed to GOMAXPROCS at startup.
	case "moveoverhead":
		if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
			u.moveOverhead = time.Duration(ms) * time.Millisecond
		}
	case "evalfile":
		u.nnuePath = value
		if u.nnuePath != "" {
			if err := u.engine.LoadNNUE(u.nnuePath); err != nil {
				fmt.Fprintf(os.Stderr, "info string failed to load NNUE: %v\n", err)
			}
		}
	case "syzygypath":
		u.syzygyPath = value
		u.initSyzygy()
	case "syzygyprobedepth":
		if depth, err := strconv.Atoi(value); err == nil && depth >= 1 {
			u.syzygyProbeDepth = depth
			if u.syzygyPath != "" {
				u.initSyzygy()
			}
		}
	case "lichesstablebase":
		if strings.ToLower(value) == "true" {
			u.enableLichessTablebase()
		}
	case "debug":
		u.debug = strings.ToLower(value) == "true"
	case "cpuprofile":
		if u.profileFile != nil {
			pprof.StopCPUProfile()
			u.profileFile.Close()
			u.profileFile = nil
			fmt.Fprintf(os.Stderr, "info string CPU profile stopped\n")
		}
		if value != "" && value != "stop" {
			f, err := os.Create(value)
			if err != nil {
				fmt.Fprintf(os.Stderr, "info string failed to create profile: %v\n", err)
				return
			}
			if err := pprof.StartCPUProfile(f); err != nil {
				f.Close()
				fmt.Fprintf(os.Stderr, "info string failed to start profile: %v\n", err)
				return
			}
			u.profileFile = f
			fmt.Fprintf(os.Stderr, "info string CPU profiling to %s\n", value)
		}
	}
}

func (u *UCI) initSyzygy() {
	if u.syzygyPath == "" {
		return
	}
	prober := tablebase.NewSyzygyProber(u.syzygyPath)
	u.engine.SetTablebase(prober, u.syzygyProbeDepth)
	fmt.Fprintf(os.Stderr, "info string Syzygy tablebase initialized at %s\n", u.syzygyPath)
}

// enableLichessTablebase switches to the online Lichess tablebase, caching
// verdicts on disk so repeated opening lines across process restarts don't
// re-fetch the same endgame positions.
func (u *UCI) enableLichessTablebase() {
	if u.cache == nil {
		c, err := store.Open(store.DefaultDir())
		if err != nil {
			fmt.Fprintf(os.Stderr, "info string failed to open disk cache: %v\n", err)
			u.engine.EnableLichessTablebase()
			return
		}
		u.cache = c
	}
	prober := store.NewDiskCachedProber(tablebase.NewLichessProber(), u.cache)
	u.engine.SetTablebase(prober, 1)
	fmt.Fprintf(os.Stderr, "info string Lichess tablebase enabled (disk-cached)\n")
}

func (u *UCI) handlePerft(args []string) {
	depth := 5
	if len(args) > 0 {
		depth, _ = strconv.Atoi(args[0])
	}

	start := time.Now()
	nodes := u.engine.Perft(u.position, depth)
	elapsed := time.Since(start)

	fmt.Printf("Nodes: %d\n", nodes)
	fmt.Printf("Time: %v\n", elapsed)
	if elapsed > 0 {
		fmt.Printf("NPS: %.0f\n", float64(nodes)/elapsed.Seconds())
	}
}
