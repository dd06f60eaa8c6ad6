package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfroyo/externalcpi/pkg/cpi"
	"github.com/openfroyo/externalcpi/pkg/stores"
)

// ExampleOpen demonstrates opening and migrating a store.
func ExampleOpen() {
	store, err := stores.Open(context.Background(), stores.Config{Path: ":memory:"})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleJournal demonstrates journaling a CPI call.
func ExampleJournal() {
	ctx := context.Background()
	store, _ := stores.Open(ctx, stores.Config{Path: ":memory:"})
	defer store.Close()

	journal := stores.NewJournal(store)
	journal.ObserveCall(ctx, &cpi.CallRecord{
		CPI:       "aws",
		Method:    cpi.MethodDeleteVM,
		Arguments: []interface{}{"i-0123"},
		StartedAt: time.Now(),
		Err:       &cpi.Error{Kind: cpi.KindVMNotFound, Type: cpi.TypeVMNotFound, Message: "VM i-0123 not found"},
	})

	calls, _ := store.ListCalls(ctx, stores.CallFilter{CPI: "aws"})
	fmt.Printf("%s %s %s\n", calls[0].Method, calls[0].Arguments, calls[0].ErrorKind)
	// Output: delete_vm ["i-0123"] vm_not_found
}
