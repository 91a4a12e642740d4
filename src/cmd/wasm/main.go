//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"moodmeal/src/internal/client"
	"moodmeal/src/internal/recommend"
)

// promise runs fn in a goroutine and settles a JS Promise with its result.
func promise(fn func() (any, error)) js.Value {
	handler := js.FuncOf(func(this js.Value, args []js.Value) any {
		resolve := args[0]
		reject := args[1]

		go func() {
			res, err := fn()
			if err != nil {
				reject.Invoke(err.Error())
				return
			}
			data, err := json.Marshal(res)
			if err != nil {
				reject.Invoke(err.Error())
				return
			}
			resolve.Invoke(string(data))
		}()

		return nil
	})
	return js.Global().Get("Promise").New(handler)
}

func main() {
	c := make(chan struct{})

	js.Global().Set("moodmealRecommend", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) < 3 {
			return "Error: missing arguments (baseUrl, serverKey, text, [userId])"
		}
		cl := &client.Client{BaseURL: args[0].String(), ServerKey: args[1].String()}
		q := recommend.TextQuery{Text: args[2].String()}
		if len(args) > 3 {
			q.UserID = args[3].String()
		}
		return promise(func() (any, error) {
			return cl.RecommendText(context.Background(), q)
		})
	}))

	js.Global().Set("moodmealRate", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) < 7 {
			return "Error: missing arguments (baseUrl, serverKey, userId, mood1, mood2, mealId, rating)"
		}
		cl := &client.Client{BaseURL: args[0].String(), ServerKey: args[1].String()}
		r := recommend.Rating{
			UserID: args[2].String(),
			Moods:  []string{args[3].String(), args[4].String()},
			MealID: args[5].String(),
			Rating: args[6].Int(),
		}
		return promise(func() (any, error) {
			return map[string]string{"status": "success"}, cl.Rate(context.Background(), r)
		})
	}))

	js.Global().Set("moodmealGetConfig", js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) < 3 {
			return "Error: missing arguments (baseUrl, adminUser, adminPass)"
		}
		cl := &client.Client{BaseURL: args[0].String(), AdminUser: args[1].String(), AdminPass: args[2].String()}
		return promise(func() (any, error) {
			raw, err := cl.Config(context.Background())
			return json.RawMessage(raw), err
		})
	}))

	fmt.Println("moodmeal WASM SDK initialized")
	<-c
}
