// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import "math/rand/v2"

const clientIDChars = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandomClientID returns a client ID every MQTT server must accept: at most
// 23 characters drawn from [0-9a-zA-Z].
func RandomClientID(prefix string) string {
	const maxLen = 23
	if len(prefix) > maxLen-8 {
		prefix = prefix[:maxLen-8]
	}

	id := make([]byte, maxLen-len(prefix))
	for i := range id {
		// #nosec G404
		id[i] = clientIDChars[rand.IntN(len(clientIDChars))]
	}
	return prefix + string(id)
}
