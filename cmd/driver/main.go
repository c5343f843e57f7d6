// Command driver is the operator-facing CLI: each invocation is a
// single subcommand (init, prepare, execute, terminate) issued as one
// HTTP request against a running host process, matching the one
// subcommand per OS process model the cluster is built around.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var hostAddr string

func main() {
	root := &cobra.Command{
		Use:   "driver",
		Short: "drive a geodist cluster through its init/prepare/execute/terminate lifecycle",
	}
	root.PersistentFlags().StringVar(&hostAddr, "host", "http://localhost:8090", "address of the host process's control-plane API")

	root.AddCommand(initCmd(), prepareCmd(), executeCmd(), terminateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCommand centralizes the CLI's error contract: any failure prints
// `Error executing command '<name>': <message>` to stderr and exits 1.
func runCommand(name string, fn func() error) error {
	if err := fn(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command '%s': %s\n", name, err)
		os.Exit(1)
	}
	return nil
}

func postJSON(path string, body interface{}, out interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	resp, err := http.Post(hostAddr+path, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error != "" {
			return fmt.Errorf("%s", errBody.Error)
		}
		return fmt.Errorf("host returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <host1> <host2> ...",
		Short: "bring up the cluster with the listed peers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand("init", func() error {
				return postJSON("/v1/init", map[string][]string{"peers": args}, nil)
			})
		},
	}
}

func prepareCmd() *cobra.Command {
	var (
		queryType       string
		dataset         string
		queryDataset    string
		leftDataset     string
		rightDataset    string
		spatialDataType string
		querySetType    string
		kValue          int
		predicate       string
	)
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "prepare datasets and load queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand("prepare", func() error {
				req := map[string]interface{}{
					"batchID":         uuid.NewString(),
					"queryType":       queryType,
					"dataset":         dataset,
					"queryDataset":    queryDataset,
					"leftDataset":     leftDataset,
					"rightDataset":    rightDataset,
					"spatialDataType": spatialDataType,
					"querySetType":    querySetType,
					"kValue":          kValue,
					"predicate":       predicate,
				}
				return postJSON("/v1/prepare", req, nil)
			})
		},
	}
	cmd.Flags().StringVar(&queryType, "queryType", "", "rangeQuery, knnQuery, or spatialJoins")
	cmd.Flags().StringVar(&dataset, "dataset", "", "dataset file path (rangeQuery, knnQuery)")
	cmd.Flags().StringVar(&queryDataset, "queryDataset", "", "query windows/points file path (rangeQuery, knnQuery)")
	cmd.Flags().StringVar(&leftDataset, "leftDataset", "", "left-hand dataset file path (spatialJoins)")
	cmd.Flags().StringVar(&rightDataset, "rightDataset", "", "right-hand dataset file path (spatialJoins)")
	cmd.Flags().StringVar(&spatialDataType, "spatialDataType", "", "point, linestring, polygon, or box")
	cmd.Flags().StringVar(&querySetType, "querySetType", "", "point, linestring, polygon, or box")
	cmd.Flags().IntVar(&kValue, "kValue", 1, "k for knnQuery")
	cmd.Flags().StringVar(&predicate, "predicate", "", "topology predicate for spatialJoins")
	cmd.MarkFlagRequired("queryType")
	return cmd
}

func executeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "execute",
		Short: "run the previously prepared queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand("execute", func() error {
				var result struct {
					Seconds     float64 `json:"seconds"`
					ResultCount int     `json:"resultCount"`
				}
				if err := postJSON("/v1/execute", struct{}{}, &result); err != nil {
					return err
				}
				fmt.Printf("finished in %.6f seconds\n", result.Seconds)
				return nil
			})
		},
	}
}

func terminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate",
		Short: "finalize the cluster",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand("terminate", func() error {
				return postJSON("/v1/terminate", struct{}{}, nil)
			})
		},
	}
}
