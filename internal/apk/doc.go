// Package apk reads signing material out of Android application packages.
//
// An APK is a zip archive that may carry up to three generations of signatures:
//
//   - v1 (JAR signing): PKCS#7 SignedData blocks stored as META-INF/*.RSA,
//     META-INF/*.DSA or META-INF/*.EC entries.
//   - v2 and v3: an "APK Signing Block" placed immediately before the zip
//     central directory. The block is a sequence of ID-value pairs; ID
//     0x7109871a holds the v2 signers and ID 0xf05368c0 the v3 signers.
//
// The package only extracts certificates. It does not re-verify signatures or
// digests; the host verified them when the package was installed.
//
// # Usage
//
//	pkg, err := apk.Open("/data/app/base.apk")
//	if err != nil {
//	    return err
//	}
//	defer pkg.Close()
//
//	signers, err := pkg.V2Signers()
//	if errors.Is(err, apk.ErrNoSigningBlock) {
//	    jar, err := pkg.JARSigners()
//	    ...
//	}
//
// All multi-byte integers in the signing block are little-endian, and every
// variable-length field is prefixed with its uint32 length.
package apk
