package lptransport

import "encoding/base64"

func basicAuthToken(botID, token string) string {
	return base64.StdEncoding.EncodeToString([]byte(botID + ":" + token))
}
