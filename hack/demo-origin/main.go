package main

import (
	"bytes"
	"fmt"
	"log"
	"net/http"
)

// A local origin for trying the proxy by hand:
//
//	curl -x http://localhost:15213 http://localhost:9000/small
func main() {
	large := bytes.Repeat([]byte("0123456789abcdef"), 8<<10) // 128 KiB, never cached

	mux := http.NewServeMux()
	mux.HandleFunc("/small", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "hello from demo-origin")
	})
	mux.HandleFunc("/large", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(large)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		for name, values := range r.Header {
			for _, v := range values {
				fmt.Fprintf(w, "%s: %s\n", name, v)
			}
		}
	})

	log.Println("demo-origin listening on :9000")
	log.Fatal(http.ListenAndServe(":9000", mux))
}
