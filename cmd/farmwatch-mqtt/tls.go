package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/smartfarm/farmwatch"
)

func NewTLSConfig() *tls.Config {
	if err := app.LoadCertificates(false); err != nil {
		panic(err)
	}

	certpool := x509.NewCertPool()
	certpool.AddCert(app.CACertificate)

	cert, err := tls.LoadX509KeyPair(app.CertificatePath+"/server.pem", app.CertificatePath+"/server.key.pem")
	if err != nil {
		panic(err)
	}

	cert.Leaf, err = x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		panic(err)
	}

	return &tls.Config{
		RootCAs:               certpool,
		ClientAuth:            tls.RequireAndVerifyClientCert,
		ClientCAs:             certpool,
		InsecureSkipVerify:    true,
		Certificates:          []tls.Certificate{cert},
		VerifyPeerCertificate: VerifyClient,
	}
}

//VerifyClient matches the gateway certificate serial against a known
//house, certificates are issued per house gateway.
func VerifyClient(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {

	cert := rawCerts[0]
	c, err := x509.ParseCertificate(cert)
	if err != nil {
		return err
	}

	log.Debugf("Gateway certificate: %s, serial %d\n", c.Subject.CommonName, c.SerialNumber)

	h, err := app.Houses.Get(farmwatch.HouseCriteria{Id: c.SerialNumber.Uint64()})
	if err != nil || h.Id == 0 {
		lg.WithField("error", err).Error("Error verifying gateway certificate")
		return fmt.Errorf("Certificate error")
	}

	return nil
}
