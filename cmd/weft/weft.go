// Program weft is a command-line utility for working with weft links: it
// encodes and decodes wire frames, and runs a demo link pair in memory.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/rs/zerolog"
	"github.com/weftproto/weft"
	"github.com/weftproto/weft/frame"
	"github.com/weftproto/weft/phy"
	"github.com/weftproto/weft/serio"
)

var frameFlags struct {
	WordBytes int `flag:"word-bytes,Word width in bytes"`
}

var demoFlags struct {
	Config string `flag:"config,Path to a TOML demo configuration file"`
	Ticks  int    `flag:"ticks,Maximum number of ticks to run the demo"`
}

func init() {
	frameFlags.WordBytes = 4
	demoFlags.Ticks = 10000
}

func main() {
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: "Utilities for working with weft links.",
		Commands: []*command.C{
			{
				Name:     "frame",
				Usage:    "<port> <payload-word>...",
				Help:     "Encode a packet into its wire frame and print the words in hex.",
				SetFlags: command.Flags(flax.MustBind, &frameFlags),
				Run:      runFrame,
			},
			{
				Name:     "decode",
				Usage:    "<word>...",
				Help:     "Recover the packets framed by the given wire words.",
				SetFlags: command.Flags(flax.MustBind, &frameFlags),
				Run:      runDecode,
			},
			{
				Name:     "demo",
				Help:     "Run a pair of in-memory links and exchange a message and a signal.",
				SetFlags: command.Flags(flax.MustBind, &demoFlags),
				Run:      runDemo,
			},
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runFrame(env *command.Env) error {
	if len(env.Args) < 2 {
		return env.Usagef("missing port or payload")
	}
	wb := frameFlags.WordBytes
	if wb < frame.MinWordBytes || wb > 8 {
		return fmt.Errorf("word width %d bytes out of range", wb)
	}
	port, err := strconv.ParseUint(env.Args[0], 0, 8)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	payload, err := parseWords(env.Args[1:], wb)
	if err != nil {
		return err
	}
	words := []frame.Word{frame.Preamble, frame.Header(uint8(port), uint16(len(payload)*wb))}
	words = append(words, payload...)
	for _, w := range words {
		fmt.Printf("0x%0*x\n", 2*wb, uint64(w))
	}
	return nil
}

func runDecode(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("missing words")
	}
	wb := frameFlags.WordBytes
	if wb < frame.MinWordBytes || wb > 8 {
		return fmt.Errorf("word width %d bytes out of range", wb)
	}
	words, err := parseWords(env.Args, wb)
	if err != nil {
		return err
	}
	in := weft.NewQueue(len(words))
	for _, w := range words {
		in.Offer(weft.Flit{Data: w})
	}
	out := &printSink{wb: wb}
	dep := weft.NewDepacketizer(wb, 0)
	for range 4 * len(words) {
		dep.Tick(in, out)
	}
	if out.count == 0 {
		fmt.Println("no complete frames")
	}
	return nil
}

// printSink prints each packet delivered to it.
type printSink struct {
	wb    int
	words []frame.Word
	count int
}

func (s *printSink) Offer(f weft.Flit) bool {
	s.words = append(s.words, f.Data)
	if f.Last {
		s.count++
		fmt.Printf("packet port=%d length=%d payload=", f.Port, f.Length)
		for i, w := range s.words {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Printf("0x%0*x", 2*s.wb, uint64(w))
		}
		fmt.Println()
		s.words = s.words[:0]
	}
	return true
}

func parseWords(args []string, wb int) ([]frame.Word, error) {
	words := make([]frame.Word, len(args))
	for i, a := range args {
		v, err := strconv.ParseUint(a, 0, 8*wb)
		if err != nil {
			return nil, fmt.Errorf("invalid word %q: %w", a, err)
		}
		words[i] = frame.Word(v)
	}
	return words, nil
}

// demoConfig is the TOML-decoded configuration of the demo subcommand.
type demoConfig struct {
	WordBytes   int    `toml:"word-bytes"`
	TxDepth     int    `toml:"tx-depth"`
	RxDepth     int    `toml:"rx-depth"`
	Timeout     int    `toml:"timeout-ticks"`
	MessagePort uint8  `toml:"message-port"`
	SignalPort  uint8  `toml:"signal-port"`
	Message     string `toml:"message"`
}

func runDemo(env *command.Env) error {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()

	cfg := demoConfig{MessagePort: 3, SignalPort: 1, Message: "hello, weft"}
	if demoFlags.Config != "" {
		if _, err := toml.DecodeFile(demoFlags.Config, &cfg); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	pa, pb := phy.Pipe(16)
	wcfg := weft.Config{
		WordBytes:    cfg.WordBytes,
		TxDepth:      cfg.TxDepth,
		RxDepth:      cfg.RxDepth,
		TimeoutTicks: cfg.Timeout,
	}
	a, err := weft.New(pa, wcfg)
	if err != nil {
		return err
	}
	b, err := weft.New(pb, wcfg)
	if err != nil {
		return err
	}
	wb := a.WordBytes()

	// Message channel: a queue producer on A, a queue consumer on B.
	payload := packWords([]byte(cfg.Message), wb)
	txq := weft.NewQueue(len(payload))
	rxq := weft.NewQueue(len(payload))
	if err := a.AttachDownstream(cfg.MessagePort, txq); err != nil {
		return err
	}
	if err := b.AttachUpstream(cfg.MessagePort, rxq); err != nil {
		return err
	}

	// Signal channel: a scalar register mirrored from A to B.
	sigIn, _, err := serio.Attach(a, cfg.SignalPort)
	if err != nil {
		return err
	}
	_, sigOut, err := serio.Attach(b, cfg.SignalPort)
	if err != nil {
		return err
	}

	if err := a.Finalize(); err != nil {
		return err
	}
	if err := b.Finalize(); err != nil {
		return err
	}

	for i, w := range payload {
		txq.Offer(weft.Flit{
			Data:   w,
			Last:   i == len(payload)-1,
			Length: uint16(len(payload) * wb),
		})
	}
	sigIn.Set(0xC0FFEE)
	log.Info().Uint8("port", cfg.MessagePort).Int("words", len(payload)).Msg("message queued")

	for tick := range demoFlags.Ticks {
		a.Tick()
		b.Tick()
		if rxq.Len() == len(payload) && sigOut.Get() == 0xC0FFEE {
			log.Info().Int("ticks", tick+1).Msg("transfer complete")
			var got []byte
			for {
				f, ok := rxq.Peek()
				if !ok {
					break
				}
				rxq.Advance()
				got = frame.AppendWord(got, f.Data, wb)
			}
			log.Info().Str("message", string(got[:len(cfg.Message)])).
				Str("signal", fmt.Sprintf("0x%X", uint64(sigOut.Get()))).Msg("received")
			return nil
		}
	}
	return fmt.Errorf("transfer incomplete after %d ticks", demoFlags.Ticks)
}

// packWords packs text into link words of wb bytes each, padding the final
// word with zeros.
func packWords(text []byte, wb int) []frame.Word {
	var words []frame.Word
	for len(text) > 0 {
		n := min(len(text), wb)
		var buf [8]byte
		copy(buf[:], text[:n])
		words = append(words, frame.ParseWord(buf[:], wb))
		text = text[n:]
	}
	return words
}
