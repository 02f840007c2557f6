package main

import (
	"fmt"
	"net/http"
)

// Upstream "burro" para validar o gateway na mão: responde os endpoints que o
// backend do copiloto teria, sem nenhuma lógica.
func main() {
	http.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"reply":"resposta do copiloto"}`)
		fmt.Println("Log: alguém acessou /api/chat")
	})
	http.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"token":"fake"}`)
		fmt.Println("Log: alguém acessou /api/auth/login")
	})
	fmt.Println("Servidor rodando em http://localhost:8082")
	err := http.ListenAndServe(":8082", nil)
	if err != nil {
		fmt.Printf("Erro ao subir o servidor: %s\n", err)
	}
}
