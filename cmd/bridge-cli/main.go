// Command bridge-cli is an operator tool that drives a running bridge-server
// over its HTTP contract: connect/disconnect the datáfono, run a purchase or
// reversal, and check status.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ocx/backend/internal/tef"
)

var baseURL string

func main() {
	root := &cobra.Command{
		Use:   "bridge-cli",
		Short: "Operator CLI for the TEF II bridge",
	}
	root.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "bridge-server base URL")

	root.AddCommand(
		statusCmd(),
		portsCmd(),
		connectCmd(),
		disconnectCmd(),
		purchaseCmd(),
		reversalCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the coordinator's connection and transaction state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/status")
		},
	}
}

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports visible to bridge-server's host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint("/ports")
		},
	}
}

func connectCmd() *cobra.Command {
	var port string
	var baud int
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Open the datáfono's serial connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint("/connect", map[string]interface{}{
				"port_path": port,
				"baud":      baud,
			})
		},
	}
	cmd.Flags().StringVar(&port, "port", "COM3", "serial port path")
	cmd.Flags().IntVar(&baud, "baud", 9600, "baud rate")
	return cmd
}

func disconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Close the datáfono's serial connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint("/disconnect", nil)
		},
	}
}

func purchaseCmd() *cobra.Command {
	var amountCents, tipCents, taxCents uint64
	var terminalID, transactionID, cashierID string
	var sendPAN bool
	cmd := &cobra.Command{
		Use:   "purchase",
		Short: "Run a purchase transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			if transactionID == "" {
				transactionID = tef.NewTransactionID()
			}
			return postAndPrint("/purchase", map[string]interface{}{
				"amount_cents":   amountCents,
				"tip_cents":      tipCents,
				"tax_cents":      taxCents,
				"terminal_id":    terminalID,
				"transaction_id": transactionID,
				"cashier_id":     cashierID,
				"send_pan":       sendPAN,
			})
		},
	}
	cmd.Flags().Uint64Var(&amountCents, "amount-cents", 0, "amount in cents (required)")
	cmd.Flags().Uint64Var(&tipCents, "tip-cents", 0, "tip in cents")
	cmd.Flags().Uint64Var(&taxCents, "tax-cents", 0, "tax in cents")
	cmd.Flags().StringVar(&terminalID, "terminal-id", "", "terminal ID")
	cmd.Flags().StringVar(&transactionID, "transaction-id", "", "transaction ID (generated if omitted)")
	cmd.Flags().StringVar(&cashierID, "cashier-id", "", "cashier ID")
	cmd.Flags().BoolVar(&sendPAN, "send-pan", false, "set send_pan on the request (the encoded purchase frame is the same either way)")
	cmd.MarkFlagRequired("amount-cents")
	return cmd
}

func reversalCmd() *cobra.Command {
	var receiptNumber, terminalID, transactionID, cashierID string
	cmd := &cobra.Command{
		Use:   "reversal",
		Short: "Reverse a prior transaction",
		RunE: func(cmd *cobra.Command, args []string) error {
			if transactionID == "" {
				transactionID = tef.NewTransactionID()
			}
			return postAndPrint("/reversal", map[string]interface{}{
				"receipt_number": receiptNumber,
				"terminal_id":    terminalID,
				"transaction_id": transactionID,
				"cashier_id":     cashierID,
			})
		},
	}
	cmd.Flags().StringVar(&receiptNumber, "receipt-number", "", "6-character receipt number (required)")
	cmd.Flags().StringVar(&terminalID, "terminal-id", "", "terminal ID")
	cmd.Flags().StringVar(&transactionID, "transaction-id", "", "transaction ID (generated if omitted)")
	cmd.Flags().StringVar(&cashierID, "cashier-id", "", "cashier ID")
	cmd.MarkFlagRequired("receipt-number")
	return cmd
}

var httpClient = &http.Client{Timeout: 65 * time.Second}

func getAndPrint(path string) error {
	resp, err := httpClient.Get(baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func postAndPrint(path string, body map[string]interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := httpClient.Post(baseURL+path, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(pretty.String())

	if resp.StatusCode >= 400 {
		return fmt.Errorf("bridge-server returned %s", resp.Status)
	}
	return nil
}
