package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/sirupsen/logrus"

	"github.com/gorilla/mux"
	"github.com/relabs-tech/tabular/core"
	"github.com/relabs-tech/tabular/core/access"
	"github.com/relabs-tech/tabular/core/backend"
	"github.com/relabs-tech/tabular/core/csql"
	"github.com/relabs-tech/tabular/core/events"
	"github.com/relabs-tech/tabular/core/logger"
)

var configurationJSON string = `
{
	"roles": {
		"public": {},
		"member": {"inherits": ["public"]},
		"editor": {"inherits": ["member"]},
		"admin":  {"inherits": ["editor"]}
	},
	"tables": [
	  {
		"name": "author",
		"fields": {
		  "name":  {"type": "text"},
		  "email": {"type": "text", "grant": {"editor": ["read", "update"]}}
		},
		"display_fields": ["name"],
		"grant": {
		  "public": ["read"],
		  "editor": ["read", "create", "update", "delete", "publish"]
		},
		"publishable_to": ["public", "member"]
	  },
	  {
		"name": "article",
		"fields": {
		  "title":        {"type": "text"},
		  "body":         {"type": "text"},
		  "published_on": {"type": "date", "orderable": true},
		  "author":       {"type": "text", "relation": "author", "array_name": "articles",
		                   "relationship_strength": "Strong",
		                   "default_sort": [{"field": "published_on", "descending": true}]}
		},
		"display_fields": ["title"],
		"grant": {
		  "public": ["read"],
		  "editor": ["read", "create", "update", "delete", "publish"]
		},
		"publishable_to": ["public", "member"]
	  }
	]
}
`

// Service holds the configuration for this service
//
// use POSTGRES="host=localhost port=5432 user=postgres password=docker dbname=postgres sslmode=disable"
type Service struct {
	Postgres     string `env:"POSTGRES,required" description:"the connection string for the Postgres DB"`
	JwtKey       string `env:"JWT_KEY,required" description:"the HMAC key accepted for JWT bearer tokens"`
	KafkaBrokers string `env:"KAFKA_BROKERS,optional" description:"comma-separated Kafka brokers for mutation events"`
	KafkaTopic   string `env:"KAFKA_TOPIC,default=tabular-events" description:"the Kafka topic for mutation events"`
	Port         string `env:"PORT,default=3000" description:"the port to listen on"`
}

func main() {
	service := &Service{}
	if err := envdecode.Decode(service); err != nil {
		panic(err)
	}
	logger.InitLogger(logrus.InfoLevel)

	db := csql.OpenWithSchema(service.Postgres, "admin")
	defer db.Close()

	var notifier core.Notifier = &events.LogNotifier{}
	if service.KafkaBrokers != "" {
		kafkaNotifier := events.NewKafkaNotifier(strings.Split(service.KafkaBrokers, ","), service.KafkaTopic)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}

	router := mux.NewRouter()
	router.Use(access.NewJwtMiddleware(&access.JwtMiddlewareBuilder{
		Key: []byte(service.JwtKey),
	}))

	backend.MustNew(&backend.Builder{
		Config:       configurationJSON,
		DB:           db,
		Router:       router,
		Notifier:     notifier,
		UpdateSchema: true,
	})

	log.Println("listen on port :" + service.Port)
	http.ListenAndServe(":"+service.Port, router)
}
