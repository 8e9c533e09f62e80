package cli

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/chzyer/readline"

	"ipcrpc/client"
	"ipcrpc/codec"
	"ipcrpc/protocol"
)

// CLI is an interactive shell that sends calls to a service.
type CLI struct {
	service string
	client  *client.Client
	output  io.Writer
}

func New(service string, c *client.Client) *CLI {
	return &CLI{
		service: service,
		client:  c,
		output:  os.Stderr,
	}
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("call"),
	readline.PcItem("exit"),
)

const usage = `commands:
    call <function id> [<type>:<value> ...]
        types: i8 i16 i32 i64 u8 u16 u32 u64 (decimal or 0x hex),
               string (text or "quoted"), buffer (hex), pb (protobuf string),
               json (document without spaces outside strings)
    help
    exit
`

func (c *CLI) print(msg string) {
	io.WriteString(c.output, msg)
}

func (c *CLI) Start() error {
	var historyFile string
	home := os.Getenv("HOME")
	if home != "" {
		historyFile = path.Join(home, ".ipcrpccli_history")
	} else {
		c.print("[WARN] $HOME is empty.\n")
	}
	prompt := fmt.Sprintf("[%s] \033[31m»\033[0m ", c.service)
	l, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer l.Close()
	c.output = l.Stderr()

	for {
		line, err := l.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		}

		if !c.exec(strings.TrimSpace(line)) {
			return nil
		}
	}
}

// exec runs one command line. It returns false on exit.
func (c *CLI) exec(line string) bool {
	switch {
	case line == "":
	case line == "exit" || line == "quit":
		return false
	case line == "help":
		c.print(usage)
	case line == "call" || strings.HasPrefix(line, "call "):
		if err := c.call(strings.TrimPrefix(line, "call")); err != nil {
			c.print(fmt.Sprintf("[ERROR] %v\n", err))
		}
	default:
		c.print("Invalid command. Call 'help' to see available commands.\n")
	}
	return true
}

func (c *CLI) call(rest string) error {
	fields, err := splitFields(rest)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return errors.New("usage: call <function id> [<type>:<value> ...]")
	}
	fid, err := strconv.ParseUint(fields[0], 0, 32)
	if err != nil {
		return fmt.Errorf("function id: %w", err)
	}
	args, err := parseArgs(fields[1:])
	if err != nil {
		return err
	}

	resp, err := c.client.Call(context.Background(), c.service, uint32(fid), args)
	if err != nil {
		return err
	}
	c.print(formatResponse(resp))
	return nil
}

func formatResponse(resp *protocol.Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (call %d, %d bytes)\n", resp.Result, resp.CallID, len(resp.Data))
	if len(resp.Data) == 0 {
		return b.String()
	}
	if len(resp.Data) == 8 {
		fmt.Fprintf(&b, "u64: %d\n", binary.LittleEndian.Uint64(resp.Data))
	}
	if utf8.Valid(resp.Data) {
		fmt.Fprintf(&b, "string: %q\n", resp.Data)
	}
	if c := resp.Data[0]; c == '{' || c == '[' {
		var doc any
		jsonCodec := codec.GetCodec(codec.CodecTypeJSON)
		if jsonCodec.Decode(resp.Data, &doc) == nil {
			compact, _ := jsonCodec.Encode(doc)
			fmt.Fprintf(&b, "json: %s\n", compact)
		}
	}
	b.WriteString(hex.Dump(resp.Data))
	return b.String()
}
