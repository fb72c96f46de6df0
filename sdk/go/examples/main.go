package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"OrderMCP/sdk/go/ordermcp"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "OrderMCP API address")
	query := flag.String("query", "订单号 A1001 帮我取消", "customer query to extract tasks from")
	flag.Parse()

	client, err := ordermcp.NewClient(*addr, nil)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tools, err := client.ListTools(ctx)
	if err != nil {
		log.Fatal(err)
	}
	for _, tool := range tools {
		fmt.Printf("tool %-26s %v\n", tool.Name, tool.Parameters)
	}

	output, err := client.CallTool(ctx, "extract_tasks", map[string]string{"query": *query})
	var apiErr *ordermcp.APIError
	switch {
	case errors.As(err, &apiErr):
		fmt.Printf("extract_tasks failed (%d): %s\n", apiErr.StatusCode, apiErr.Body)
	case err != nil:
		log.Fatal(err)
	default:
		fmt.Printf("extract_tasks => %s\n", output)
	}

	job, err := client.SubmitJob(ctx, ordermcp.JobSubmission{
		Tool:      "extract_tasks",
		Arguments: map[string]string{"query": *query},
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("submitted job %s (status=%s)\n", job.ID, job.Status)

	done, err := client.WaitJob(ctx, job.ID, time.Second)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("job %s finished: status=%s output=%s\n", done.ID, done.Status, done.Output)
}
