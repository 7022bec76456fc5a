package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL      string
	REDIS_PASSWORD string
	REDIS_DB       string
	// VNPay Configuration
	VNPAY_TMN_CODE       string
	VNPAY_HASH_SECRET    string
	VNPAY_BASE_URL       string
	VNPAY_RETURN_URL     string
	VNPAY_EXPIRY_MINUTES int
	// Frontend redirect target for payment results
	FRONTEND_PAYMENT_RETURN_URL string
	// Catalog service
	CATALOG_SERVICE_URL string
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	vnpayExpiry, err := strconv.Atoi(os.Getenv("VNPAY_EXPIRY_MINUTES"))
	if err != nil || vnpayExpiry <= 0 {
		vnpayExpiry = 15
	}

	vnpayBaseURL := os.Getenv("VNPAY_BASE_URL")
	if vnpayBaseURL == "" {
		vnpayBaseURL = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		PORT:         port,
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: os.Getenv("JWT_ISSUER"),
		// Redis
		REDIS_URL:      os.Getenv("REDIS_URL"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),
		REDIS_DB:       os.Getenv("REDIS_DB"),
		// VNPay
		VNPAY_TMN_CODE:       os.Getenv("VNPAY_TMN_CODE"),
		VNPAY_HASH_SECRET:    os.Getenv("VNPAY_HASH_SECRET"),
		VNPAY_BASE_URL:       vnpayBaseURL,
		VNPAY_RETURN_URL:     os.Getenv("VNPAY_RETURN_URL"),
		VNPAY_EXPIRY_MINUTES: vnpayExpiry,
		// Frontend
		FRONTEND_PAYMENT_RETURN_URL: os.Getenv("FRONTEND_PAYMENT_RETURN_URL"),
		// Catalog
		CATALOG_SERVICE_URL: os.Getenv("CATALOG_SERVICE_URL"),
	}

	return envVariables, nil
}
