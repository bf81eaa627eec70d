// Package main provides the account management CLI tool.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/poemonsense/antigravity-proxy-go/internal/account"
	"github.com/poemonsense/antigravity-proxy-go/internal/auth"
	"github.com/poemonsense/antigravity-proxy-go/internal/config"
	"github.com/poemonsense/antigravity-proxy-go/internal/tokenstore"
	"github.com/poemonsense/antigravity-proxy-go/internal/utils"
)

func main() {
	args := os.Args[1:]
	command := "add"
	noBrowser := false

	for _, arg := range args {
		if arg == "--no-browser" {
			noBrowser = true
		} else if !strings.HasPrefix(arg, "-") && command == "add" {
			command = arg
		}
	}

	serverPort := config.DefaultPort
	if v := os.Getenv("AETHER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			serverPort = p
		}
	}

	store, err := tokenstore.New(utils.Warn)
	if err != nil {
		fmt.Println("Error opening account store:", err)
		os.Exit(1)
	}

	printBanner()

	scanner := bufio.NewScanner(os.Stdin)

	switch command {
	case "add":
		ensureServerStopped(serverPort)
		interactiveAdd(store, scanner, noBrowser)
	case "list":
		listAccounts(store)
	case "clear":
		ensureServerStopped(serverPort)
		clearAccounts(store, scanner)
	case "verify":
		verifyAccounts(store)
	case "remove":
		ensureServerStopped(serverPort)
		interactiveRemove(store, scanner)
	case "help":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Run with \"help\" for usage information.")
	}
}

func printBanner() {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║   Aether Bridge Account Manager         ║")
	fmt.Println("║   Use --no-browser for headless mode    ║")
	fmt.Println("╚════════════════════════════════════════╝")
}

func printHelp() {
	fmt.Println("\nUsage:")
	fmt.Println("  aether-accounts add     Add new account(s)")
	fmt.Println("  aether-accounts list    List all accounts")
	fmt.Println("  aether-accounts verify  Verify account tokens")
	fmt.Println("  aether-accounts clear   Remove all accounts")
	fmt.Println("  aether-accounts remove  Remove a single account")
	fmt.Println("  aether-accounts help    Show this help")
	fmt.Println("\nOptions:")
	fmt.Println("  --no-browser    Manual authorization code input (for headless servers)")
}

func isServerRunning(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("localhost:%d", port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func ensureServerStopped(port int) {
	if isServerRunning(port) {
		fmt.Printf("\n\033[31mError: Aether Bridge server is currently running on port %d.\033[0m\n\n", port)
		fmt.Println("Please stop the server (Ctrl+C) before adding or managing accounts.")
		fmt.Println("This ensures that your account changes are loaded correctly when you restart the server.")
		os.Exit(1)
	}
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", strings.ReplaceAll(url, "&", "^&"))
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		fmt.Println("\n⚠ Could not open browser automatically.")
		fmt.Println("Please open this URL manually:", url)
	}
}

func displayAccounts(docs []tokenstore.StoredAccount) {
	if len(docs) == 0 {
		fmt.Println("\nNo accounts configured.")
		return
	}
	fmt.Printf("\n%d account(s) saved:\n", len(docs))
	for i, a := range docs {
		fmt.Printf("  %d. %s\n", i+1, a.Email)
	}
}

func prompt(scanner *bufio.Scanner, message string) string {
	fmt.Print(message)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

// authenticate drives one OAuth authorization round, via browser redirect or
// manual code paste, and returns the resolved email/refresh token.
func authenticate(scanner *bufio.Scanner, noBrowser bool) (string, string, error) {
	result, err := auth.GetAuthorizationURL()
	if err != nil {
		return "", "", fmt.Errorf("generating auth URL: %w", err)
	}

	var code string
	if noBrowser {
		fmt.Println("\n=== Add Google Account (No-Browser Mode) ===")
		fmt.Println("Copy the following URL and open it in a browser on another device:")
		fmt.Printf("   %s\n\n", result.URL)
		fmt.Println("After signing in, copy the ENTIRE redirect URL or just the authorization code.")

		input := prompt(scanner, "Paste the callback URL or authorization code: ")
		codeResult, err := auth.ExtractCodeFromInput(input)
		if err != nil {
			return "", "", err
		}
		if codeResult.State != "" && codeResult.State != result.State {
			fmt.Println("\n⚠ State mismatch detected. Proceeding anyway in manual mode...")
		}
		code = codeResult.Code
	} else {
		fmt.Println("\n=== Add Google Account ===")
		fmt.Println("Opening browser for Google sign-in...")
		fmt.Println("(If the browser does not open, copy this URL manually)")
		fmt.Printf("   %s\n\n", result.URL)
		openBrowser(result.URL)

		fmt.Println("Waiting for authentication (timeout: 2 minutes)...")
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		callback := auth.NewCallbackServer(result.State)
		c, err := callback.Start(ctx)
		if err != nil {
			return "", "", fmt.Errorf("authentication failed: %w", err)
		}
		code = c
	}

	fmt.Println("Exchanging authorization code for tokens...")
	flow, err := auth.CompleteOAuthFlow(context.Background(), code, result.Verifier)
	if err != nil {
		return "", "", fmt.Errorf("authentication failed: %w", err)
	}
	return flow.Email, flow.RefreshToken, nil
}

func interactiveAdd(store *tokenstore.Store, scanner *bufio.Scanner, noBrowser bool) {
	if noBrowser {
		fmt.Println("\n📋 No-browser mode: you will manually paste the authorization code.")
	}

	doc, err := store.LoadAll()
	if err != nil {
		fmt.Println("Error loading accounts:", err)
		return
	}

	if len(doc.Accounts) > 0 {
		displayAccounts(doc.Accounts)
		choice := strings.ToLower(prompt(scanner, "\n(a)dd new, (r)emove existing, or (e)xit? [a/r/e]: "))
		switch choice {
		case "r":
			interactiveRemove(store, scanner)
			return
		case "e":
			fmt.Println("\nExiting...")
			return
		default:
			fmt.Println("\nAdding to existing accounts.")
		}
	}

	email, refreshToken, err := authenticate(scanner, noBrowser)
	if err != nil {
		fmt.Println("\n✗", err)
		return
	}
	if err := store.Add(email, refreshToken); err != nil {
		fmt.Println("Error saving account:", err)
		return
	}

	fmt.Printf("\n✓ Saved account %s\n", email)
	fmt.Println("Project will be discovered on first API request.")

	doc, _ = store.LoadAll()
	displayAccounts(doc.Accounts)
	fmt.Println("\nTo add more accounts, run this command again.")
}

func interactiveRemove(store *tokenstore.Store, scanner *bufio.Scanner) {
	for {
		doc, err := store.LoadAll()
		if err != nil {
			fmt.Println("Error loading accounts:", err)
			return
		}
		if len(doc.Accounts) == 0 {
			fmt.Println("\nNo accounts to remove.")
			return
		}

		displayAccounts(doc.Accounts)
		fmt.Println("\nEnter account number to remove (or 0 to cancel)")

		answer := prompt(scanner, "> ")
		index, err := strconv.Atoi(answer)
		if err != nil || index < 0 || index > len(doc.Accounts) {
			fmt.Println("\n❌ Invalid selection.")
			continue
		}
		if index == 0 {
			return
		}

		target := doc.Accounts[index-1]
		confirm := prompt(scanner, fmt.Sprintf("\nAre you sure you want to remove %s? [y/N]: ", target.Email))
		if strings.ToLower(confirm) == "y" {
			if _, err := store.Remove(target.Email); err != nil {
				fmt.Println("Error removing account:", err)
			} else {
				fmt.Printf("\n✓ Removed %s\n", target.Email)
			}
		} else {
			fmt.Println("\nCancelled.")
		}

		if strings.ToLower(prompt(scanner, "\nRemove another account? [y/N]: ")) != "y" {
			break
		}
	}
}

func listAccounts(store *tokenstore.Store) {
	doc, err := store.LoadAll()
	if err != nil {
		fmt.Println("Error loading accounts:", err)
		return
	}
	displayAccounts(doc.Accounts)
}

func clearAccounts(store *tokenstore.Store, scanner *bufio.Scanner) {
	doc, err := store.LoadAll()
	if err != nil {
		fmt.Println("Error loading accounts:", err)
		return
	}
	if len(doc.Accounts) == 0 {
		fmt.Println("No accounts to clear.")
		return
	}

	displayAccounts(doc.Accounts)
	confirm := prompt(scanner, "\nAre you sure you want to remove all accounts? [y/N]: ")
	if strings.ToLower(confirm) != "y" {
		fmt.Println("Cancelled.")
		return
	}

	for _, a := range doc.Accounts {
		if _, err := store.Remove(a.Email); err != nil {
			fmt.Println("Error removing account:", err)
			return
		}
	}
	fmt.Println("All accounts removed.")
}

func verifyAccounts(store *tokenstore.Store) {
	doc, err := store.LoadAll()
	if err != nil {
		fmt.Println("Error loading accounts:", err)
		return
	}
	if len(doc.Accounts) == 0 {
		fmt.Println("No accounts to verify.")
		return
	}

	fmt.Println("\nVerifying accounts...")
	refresher := account.NewOAuth2Refresher()
	ctx := context.Background()
	for _, a := range doc.Accounts {
		if _, err := refresher.Refresh(ctx, a.RefreshToken); err != nil {
			fmt.Printf("  ✗ %s - %v\n", a.Email, err)
			continue
		}
		fmt.Printf("  ✓ %s - OK\n", a.Email)
	}
}
