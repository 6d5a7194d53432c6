package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/sanatani-gyan/backend/internal/model/chat"
)

const usage = `用法: askcli [flags] <command> [args]

commands:
  signup <username>   注册并登录
  login <username>    登录
  logout              退出登录
  ask <question>      提问
  topic <topic>       以快捷话题提问
  topics              列出快捷话题
  list [-saved]       列出消息
  clear               清空当前身份的消息
  lang <language>     切换回答语言 (English, Hindi, Hinglish)
`

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	server := flag.String("server", envOrDefault("ASKCLI_SERVER", "http://localhost:8080"), "后端地址")
	timeout := flag.Duration("timeout", 90*time.Second, "请求超时时间")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client := newAPIClient(*server, *timeout)
	if err := run(context.Background(), client, os.Stdout, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *apiClient, out io.Writer, args []string) error {
	cmd, rest := args[0], args[1:]
	text := strings.TrimSpace(strings.Join(rest, " "))

	switch cmd {
	case "signup", "login":
		result, err := c.auth(ctx, cmd, text)
		if err != nil {
			return err
		}
		if !result.OK {
			return fmt.Errorf("%s", result.Reason)
		}
		fmt.Fprintf(out, "signed in as %s\n", text)
	case "logout":
		if err := c.logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "now browsing as guest")
	case "ask":
		reply, err := c.ask(ctx, text)
		if err != nil {
			return err
		}
		if reply == nil {
			return fmt.Errorf("question is empty")
		}
		printMessage(out, *reply)
	case "topic":
		reply, err := c.askTopic(ctx, text)
		if err != nil {
			return err
		}
		printMessage(out, *reply)
	case "topics":
		topics, err := c.topics(ctx)
		if err != nil {
			return err
		}
		for _, t := range topics {
			fmt.Fprintf(out, "%-16s %s\n", t.ID, t.Question())
		}
	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		saved := fs.Bool("saved", false, "只列出收藏的消息")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		messages, err := c.list(ctx, *saved)
		if err != nil {
			return err
		}
		for _, msg := range messages {
			printMessage(out, msg)
		}
	case "clear":
		if err := c.clear(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "history cleared")
	case "lang":
		if err := c.setLanguage(ctx, text); err != nil {
			return err
		}
		fmt.Fprintf(out, "language set to %s\n", text)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func printMessage(out io.Writer, msg chat.Message) {
	saved := ""
	if msg.IsSaved {
		saved = " *"
	}

	if msg.Role == chat.RoleUser || msg.Answer == nil {
		fmt.Fprintf(out, "[%s %s]%s %s\n", msg.Role, msg.Timestamp, saved, msg.Text)
		return
	}

	a := msg.Answer
	fmt.Fprintf(out, "[%s %s]%s %s\n", msg.Role, msg.Timestamp, saved, a.ShortTeaching)
	fmt.Fprintf(out, "  %s: %s\n", a.ScriptureReference, a.ScripturePassage)
	fmt.Fprintf(out, "  Example: %s\n", a.RelatableExample)
	for i, step := range a.ActionableSteps {
		fmt.Fprintf(out, "  %d. %s\n", i+1, step)
	}
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
